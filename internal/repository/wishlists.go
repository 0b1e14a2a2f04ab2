package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/storefront/internal/models"
)

// WishlistRepository implements services.WishlistStore.
type WishlistRepository struct {
	db *gorm.DB
}

// NewWishlistRepository constructs WishlistRepository.
func NewWishlistRepository(db *gorm.DB) *WishlistRepository {
	return &WishlistRepository{db: db}
}

// GetOrCreateWishlist implements services.WishlistStore.
func (r *WishlistRepository) GetOrCreateWishlist(ctx context.Context, userID uuid.UUID) (*models.Wishlist, error) {
	db := r.db.WithContext(ctx)
	var wishlist models.Wishlist
	err := db.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("added_at desc") }).
		First(&wishlist, "user_id = ?", userID).Error
	if err == nil {
		return &wishlist, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	wishlist = models.Wishlist{UserID: userID}
	// Two first reads may race; the unique user_id index lets the loser reload.
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&wishlist).Error; err != nil {
		return nil, err
	}
	var stored models.Wishlist
	if err := db.Preload("Items").First(&stored, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// AddWishlistItem implements services.WishlistStore.
func (r *WishlistRepository) AddWishlistItem(ctx context.Context, wishlistID, productID uuid.UUID, at time.Time) error {
	item := models.WishlistItem{WishlistID: wishlistID, ProductID: productID, AddedAt: at}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&item).Error
}

// RemoveWishlistItems implements services.WishlistStore.
func (r *WishlistRepository) RemoveWishlistItems(ctx context.Context, wishlistID uuid.UUID, productIDs []uuid.UUID) (int64, error) {
	if len(productIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("wishlist_id = ? AND product_id IN ?", wishlistID, productIDs).
		Delete(&models.WishlistItem{})
	return res.RowsAffected, res.Error
}

// ClearWishlist implements services.WishlistStore.
func (r *WishlistRepository) ClearWishlist(ctx context.Context, wishlistID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("wishlist_id = ?", wishlistID).Delete(&models.WishlistItem{}).Error
}
