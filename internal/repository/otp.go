package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/services"
)

// OTPRepository implements services.OTPStore on Postgres, so codes are
// shared between instances and expire by timestamp.
type OTPRepository struct {
	db *gorm.DB
}

// NewOTPRepository constructs OTPRepository.
func NewOTPRepository(db *gorm.DB) *OTPRepository {
	return &OTPRepository{db: db}
}

// SaveEmailOTP stores otp and purges codes that expired more than a day ago.
func (r *OTPRepository) SaveEmailOTP(ctx context.Context, otp *models.EmailOTP) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("expires_at < ?", time.Now().Add(-24*time.Hour)).Delete(&models.EmailOTP{}).Error; err != nil {
		return err
	}
	return db.Create(otp).Error
}

// LatestEmailOTP implements services.OTPStore.
func (r *OTPRepository) LatestEmailOTP(ctx context.Context, email, purpose string) (*models.EmailOTP, error) {
	var otp models.EmailOTP
	err := r.db.WithContext(ctx).
		Where("email = ? AND purpose = ?", email, purpose).
		Order("created_at desc").
		First(&otp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrInvalidCode
		}
		return nil, err
	}
	return &otp, nil
}

// SavePhoneVerification implements services.OTPStore.
func (r *OTPRepository) SavePhoneVerification(ctx context.Context, v *models.PhoneVerification) error {
	return r.db.WithContext(ctx).Create(v).Error
}

// LatestPhoneVerification implements services.OTPStore.
func (r *OTPRepository) LatestPhoneVerification(ctx context.Context, phone string) (*models.PhoneVerification, error) {
	var v models.PhoneVerification
	err := r.db.WithContext(ctx).
		Where("phone = ?", phone).
		Order("created_at desc").
		First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrInvalidCode
		}
		return nil, err
	}
	return &v, nil
}

// ClaimAttempt implements services.OTPStore. The limit is checked in the
// UPDATE so concurrent guesses cannot overshoot it.
func (r *OTPRepository) ClaimAttempt(ctx context.Context, model any, id uuid.UUID, limit int) (bool, error) {
	res := r.db.WithContext(ctx).Model(model).
		Where("id = ? AND used_at IS NULL AND attempts < ?", id, limit).
		Update("attempts", gorm.Expr("attempts + 1"))
	return res.RowsAffected == 1, res.Error
}

// MarkUsed implements services.OTPStore. Only the first caller flips used_at.
func (r *OTPRepository) MarkUsed(ctx context.Context, model any, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(model).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", at)
	return res.RowsAffected == 1, res.Error
}
