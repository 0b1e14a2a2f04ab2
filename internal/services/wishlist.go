package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/storefront/internal/models"
)

// WishlistStore persists wishlists and their items.
type WishlistStore interface {
	// GetOrCreateWishlist returns the user's wishlist with items, creating an empty one on first use.
	GetOrCreateWishlist(ctx context.Context, userID uuid.UUID) (*models.Wishlist, error)
	// AddWishlistItem is a no-op when the product is already listed.
	AddWishlistItem(ctx context.Context, wishlistID, productID uuid.UUID, at time.Time) error
	RemoveWishlistItems(ctx context.Context, wishlistID uuid.UUID, productIDs []uuid.UUID) (int64, error)
	ClearWishlist(ctx context.Context, wishlistID uuid.UUID) error
}

// WishlistEntry is a wishlist item joined with its product.
type WishlistEntry struct {
	ProductID uuid.UUID       `json:"product_id"`
	AddedAt   time.Time       `json:"added_at"`
	Product   *models.Product `json:"product"`
}

// WishlistService manages wishlists. Reads drop items whose product was
// deleted and persist the pruned list, so a deleted product is reported at
// most once.
type WishlistService struct {
	store    WishlistStore
	products ProductStore
	now      func() time.Time
}

// NewWishlistService constructs a WishlistService.
func NewWishlistService(store WishlistStore, products ProductStore) *WishlistService {
	return &WishlistService{store: store, products: products, now: time.Now}
}

// Get returns the sanitized wishlist of the user.
func (s *WishlistService) Get(ctx context.Context, userID uuid.UUID) ([]WishlistEntry, error) {
	wishlist, err := s.store.GetOrCreateWishlist(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(wishlist.Items))
	for _, item := range wishlist.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.FindProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	live := make(map[uuid.UUID]bool, len(products))
	for id := range products {
		live[id] = true
	}
	kept, removed := PruneDangling(wishlist.Items, func(i models.WishlistItem) uuid.UUID { return i.ProductID }, live)
	if len(removed) > 0 {
		stale := make([]uuid.UUID, 0, len(removed))
		for _, item := range removed {
			stale = append(stale, item.ProductID)
		}
		if _, err := s.store.RemoveWishlistItems(ctx, wishlist.ID, stale); err != nil {
			return nil, fmt.Errorf("prune wishlist: %w", err)
		}
	}

	entries := make([]WishlistEntry, 0, len(kept))
	for _, item := range kept {
		entries = append(entries, WishlistEntry{
			ProductID: item.ProductID,
			AddedAt:   item.AddedAt,
			Product:   products[item.ProductID],
		})
	}
	return entries, nil
}

// Add puts a product on the wishlist.
func (s *WishlistService) Add(ctx context.Context, userID, productID uuid.UUID) error {
	if _, err := s.products.FindProduct(ctx, productID); err != nil {
		return err
	}
	wishlist, err := s.store.GetOrCreateWishlist(ctx, userID)
	if err != nil {
		return err
	}
	return s.store.AddWishlistItem(ctx, wishlist.ID, productID, s.now())
}

// Remove takes a product off the wishlist.
func (s *WishlistService) Remove(ctx context.Context, userID, productID uuid.UUID) error {
	wishlist, err := s.store.GetOrCreateWishlist(ctx, userID)
	if err != nil {
		return err
	}
	n, err := s.store.RemoveWishlistItems(ctx, wishlist.ID, []uuid.UUID{productID})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrWishlistItemNotFound
	}
	return nil
}

// Clear empties the wishlist.
func (s *WishlistService) Clear(ctx context.Context, userID uuid.UUID) error {
	wishlist, err := s.store.GetOrCreateWishlist(ctx, userID)
	if err != nil {
		return err
	}
	return s.store.ClearWishlist(ctx, wishlist.ID)
}
