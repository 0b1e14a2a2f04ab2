package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/services"
)

// EnquiryRepository implements services.EnquiryStore.
type EnquiryRepository struct {
	db *gorm.DB
}

// NewEnquiryRepository constructs EnquiryRepository.
func NewEnquiryRepository(db *gorm.DB) *EnquiryRepository {
	return &EnquiryRepository{db: db}
}

// CreateEnquiry implements services.EnquiryStore.
func (r *EnquiryRepository) CreateEnquiry(ctx context.Context, enquiry *models.Enquiry) error {
	return r.db.WithContext(ctx).Create(enquiry).Error
}

// FindEnquiry implements services.EnquiryStore.
func (r *EnquiryRepository) FindEnquiry(ctx context.Context, id uuid.UUID) (*models.Enquiry, error) {
	var enquiry models.Enquiry
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("User", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "first_name", "last_name", "display_name", "email", "phone", "role")
		}).
		First(&enquiry, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrEnquiryNotFound
		}
		return nil, err
	}
	return &enquiry, nil
}

// ListEnquiries implements services.EnquiryStore.
func (r *EnquiryRepository) ListEnquiries(ctx context.Context, filter services.EnquiryFilter) ([]models.Enquiry, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Enquiry{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var enquiries []models.Enquiry
	if err := query.Preload("Items").
		Preload("User", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "first_name", "last_name", "display_name", "email", "phone", "role")
		}).
		Order("created_at desc").
		Limit(filter.Limit).Offset(filter.Offset).
		Find(&enquiries).Error; err != nil {
		return nil, 0, err
	}
	return enquiries, total, nil
}

// RemoveEnquiryItems implements services.EnquiryStore.
func (r *EnquiryRepository) RemoveEnquiryItems(ctx context.Context, itemIDs []uuid.UUID) error {
	if len(itemIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("id IN ?", itemIDs).Delete(&models.EnquiryItem{}).Error
}

// UpdateEnquiry implements services.EnquiryStore.
func (r *EnquiryRepository) UpdateEnquiry(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.Enquiry{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return services.ErrEnquiryNotFound
	}
	return nil
}

// CountByStatus returns enquiry counts keyed by status.
func (r *EnquiryRepository) CountByStatus(ctx context.Context) (map[models.EnquiryStatus]int64, error) {
	type statusCount struct {
		Status models.EnquiryStatus
		Count  int64
	}
	var rows []statusCount
	if err := r.db.WithContext(ctx).Model(&models.Enquiry{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[models.EnquiryStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
