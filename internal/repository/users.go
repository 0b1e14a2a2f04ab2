package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/utils"
)

// UserRepository stores accounts together with their tokens, cart,
// addresses and recently viewed products.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository constructs UserRepository.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindUser implements services.TokenStore.
func (r *UserRepository) FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrUnknownIdentity
		}
		return nil, err
	}
	return &user, nil
}

// FindByEmail returns gorm.ErrRecordNotFound when no account uses email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByPhone returns gorm.ErrRecordNotFound when no account uses phone.
func (r *UserRepository) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByLogin looks the identifier up as an email first, then as a phone.
func (r *UserRepository) FindByLogin(ctx context.Context, identifier string) (*models.User, error) {
	user, err := r.FindByEmail(ctx, services.NormalizeEmail(identifier))
	if err == nil || !errors.Is(err, gorm.ErrRecordNotFound) {
		return user, err
	}
	return r.FindByPhone(ctx, identifier)
}

// Create inserts a new account.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// Updates applies a partial column update.
func (r *UserRepository) Updates(ctx context.Context, userID uuid.UUID, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes the account and everything it owns, sessions included, in
// one transaction. Enquiries stay; the foreign key clears their user_id.
func (r *UserRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Select(clause.Associations).Delete(&models.User{BaseModel: models.BaseModel{ID: userID}})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// List pages through accounts of one role, optionally filtered by search.
func (r *UserRepository) List(ctx context.Context, role models.Role, search string, pg utils.Pagination) ([]models.User, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.User{}).Where("role = ?", role)
	if search != "" {
		like := containsPattern(search)
		query = query.Where(
			"first_name ILIKE ? OR last_name ILIKE ? OR email ILIKE ? OR phone ILIKE ?",
			like, like, like, like,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []models.User
	if err := query.Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// CountByRole returns account counts keyed by role.
func (r *UserRepository) CountByRole(ctx context.Context) (map[models.Role]int64, error) {
	type roleCount struct {
		Role  models.Role
		Count int64
	}
	var rows []roleCount
	if err := r.db.WithContext(ctx).Model(&models.User{}).
		Select("role, count(*) as count").
		Group("role").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[models.Role]int64, len(rows))
	for _, row := range rows {
		counts[row.Role] = row.Count
	}
	return counts, nil
}

// AddToken implements services.TokenStore. The insert and the prune are
// separate statements so concurrent issues each keep their own token.
func (r *UserRepository) AddToken(ctx context.Context, token models.UserToken, keep int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&token).Error; err != nil {
			return err
		}
		newest := tx.Model(&models.UserToken{}).
			Select("id").
			Where("user_id = ?", token.UserID).
			Order("issued_at desc").
			Limit(keep)
		return tx.Where("user_id = ? AND id NOT IN (?)", token.UserID, newest).
			Delete(&models.UserToken{}).Error
	})
}

// HasToken implements services.TokenStore.
func (r *UserRepository) HasToken(ctx context.Context, userID uuid.UUID, digest string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserToken{}).
		Where("user_id = ? AND digest = ?", userID, digest).
		Count(&count).Error
	return count > 0, err
}

// RemoveToken implements services.TokenStore.
func (r *UserRepository) RemoveToken(ctx context.Context, userID uuid.UUID, digest string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND digest = ?", userID, digest).
		Delete(&models.UserToken{}).Error
}

// ClearTokens implements services.TokenStore.
func (r *UserRepository) ClearTokens(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.UserToken{}).Error
}

// TouchLastLogin implements services.TokenStore.
func (r *UserRepository) TouchLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("last_login_at", at).Error
}

// LoadCart implements services.CartStore.
func (r *UserRepository) LoadCart(ctx context.Context, userID uuid.UUID) ([]models.CartItem, int, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Select("id", "cart_version").First(&user, "id = ?", userID).Error; err != nil {
		return nil, 0, err
	}
	var lines []models.CartItem
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("added_at asc").
		Find(&lines).Error; err != nil {
		return nil, 0, err
	}
	return lines, user.CartVersion, nil
}

// SaveCart implements services.CartStore. It bumps cart_version only when it
// still equals version, then writes just the rows that differ.
func (r *UserRepository) SaveCart(ctx context.Context, userID uuid.UUID, version int, lines []models.CartItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ? AND cart_version = ?", userID, version).
			UpdateColumn("cart_version", gorm.Expr("cart_version + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return services.ErrCartConflict
		}

		var existing []models.CartItem
		if err := tx.Where("user_id = ?", userID).Find(&existing).Error; err != nil {
			return err
		}
		current := make(map[uuid.UUID]models.CartItem, len(existing))
		for _, line := range existing {
			current[line.ID] = line
		}

		keep := make(map[uuid.UUID]bool, len(lines))
		for i := range lines {
			line := lines[i]
			line.UserID = userID
			if line.ID == uuid.Nil {
				if err := tx.Create(&line).Error; err != nil {
					return err
				}
				continue
			}
			keep[line.ID] = true
			old, ok := current[line.ID]
			if ok && old.Quantity == line.Quantity && old.Size == line.Size && old.VariantID == line.VariantID {
				continue
			}
			if err := tx.Model(&models.CartItem{}).Where("id = ?", line.ID).Updates(map[string]interface{}{
				"quantity":   line.Quantity,
				"size":       line.Size,
				"variant_id": line.VariantID,
			}).Error; err != nil {
				return err
			}
		}

		var stale []uuid.UUID
		for id := range current {
			if !keep[id] {
				stale = append(stale, id)
			}
		}
		if len(stale) > 0 {
			if err := tx.Where("id IN ?", stale).Delete(&models.CartItem{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ListAddresses returns the user's addresses, default first.
func (r *UserRepository) ListAddresses(ctx context.Context, userID uuid.UUID) ([]models.UserAddress, error) {
	var addresses []models.UserAddress
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("is_default desc, created_at asc").
		Find(&addresses).Error
	return addresses, err
}

// SaveAddress creates or updates an address. When it is the default the
// user's other addresses lose the flag in the same transaction.
func (r *UserRepository) SaveAddress(ctx context.Context, address *models.UserAddress) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if address.IsDefault {
			if err := tx.Model(&models.UserAddress{}).
				Where("user_id = ? AND id <> ?", address.UserID, address.ID).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}
		if address.ID == uuid.Nil {
			return tx.Create(address).Error
		}
		res := tx.Model(&models.UserAddress{}).
			Where("id = ? AND user_id = ?", address.ID, address.UserID).
			Select("*").Omit("id", "user_id", "created_at").
			Updates(address)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// FindAddress returns gorm.ErrRecordNotFound when the address is not the user's.
func (r *UserRepository) FindAddress(ctx context.Context, userID, addressID uuid.UUID) (*models.UserAddress, error) {
	var address models.UserAddress
	if err := r.db.WithContext(ctx).First(&address, "id = ? AND user_id = ?", addressID, userID).Error; err != nil {
		return nil, err
	}
	return &address, nil
}

// DeleteAddress removes one of the user's addresses.
func (r *UserRepository) DeleteAddress(ctx context.Context, userID, addressID uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", addressID, userID).Delete(&models.UserAddress{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RecordView moves productID to the front of the recently viewed list and
// keeps only the newest models.MaxRecentlyViewed entries.
func (r *UserRepository) RecordView(ctx context.Context, userID, productID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		view := models.RecentlyViewed{UserID: userID, ProductID: productID, ViewedAt: at}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"viewed_at", "updated_at"}),
		}).Create(&view).Error; err != nil {
			return err
		}
		newest := tx.Model(&models.RecentlyViewed{}).
			Select("id").
			Where("user_id = ?", userID).
			Order("viewed_at desc").
			Limit(models.MaxRecentlyViewed)
		return tx.Where("user_id = ? AND id NOT IN (?)", userID, newest).
			Delete(&models.RecentlyViewed{}).Error
	})
}

// RecentlyViewedIDs returns viewed product ids, newest first.
func (r *UserRepository) RecentlyViewedIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.RecentlyViewed{}).
		Where("user_id = ?", userID).
		Order("viewed_at desc").
		Limit(models.MaxRecentlyViewed).
		Pluck("product_id", &ids).Error
	return ids, err
}

// ForgetViews drops recently viewed rows for products that no longer exist.
func (r *UserRepository) ForgetViews(ctx context.Context, userID uuid.UUID, productIDs []uuid.UUID) error {
	if len(productIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("user_id = ? AND product_id IN ?", userID, productIDs).
		Delete(&models.RecentlyViewed{}).Error
}
