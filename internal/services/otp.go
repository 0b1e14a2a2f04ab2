package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/storefront/internal/models"
)

const (
	OTPLength = 6
	OTPTTL    = 10 * time.Minute
	// MaxOTPAttempts is how many checks one issued code allows, the
	// successful one included.
	MaxOTPAttempts = 5

	PurposeLogin         = "login"
	PurposePasswordReset = "password-reset"
)

// OTPStore keeps issued one-time codes in shared storage so every server
// instance sees the same codes.
type OTPStore interface {
	SaveEmailOTP(ctx context.Context, otp *models.EmailOTP) error
	// LatestEmailOTP returns ErrInvalidCode when nothing was issued.
	LatestEmailOTP(ctx context.Context, email, purpose string) (*models.EmailOTP, error)
	SavePhoneVerification(ctx context.Context, v *models.PhoneVerification) error
	// LatestPhoneVerification returns ErrInvalidCode when nothing was issued.
	LatestPhoneVerification(ctx context.Context, phone string) (*models.PhoneVerification, error)
	// MarkUsed atomically consumes a code row; false means it was already used.
	MarkUsed(ctx context.Context, model any, id uuid.UUID, at time.Time) (bool, error)
	// ClaimAttempt atomically counts one check against an unused code row;
	// false means the row is used or already has limit attempts.
	ClaimAttempt(ctx context.Context, model any, id uuid.UUID, limit int) (bool, error)
}

// PhoneVerifier is the SMS one-time code provider.
type PhoneVerifier interface {
	Enabled() bool
	SendCode(ctx context.Context, phone string) (string, error)
	CheckCode(ctx context.Context, sessionID, code string) (bool, error)
}

// OTPService issues and checks email and phone one-time codes.
type OTPService struct {
	store  OTPStore
	mailer Mailer
	phones PhoneVerifier
	now    func() time.Time
	codes  func() (string, error)
}

// NewOTPService constructs an OTPService.
func NewOTPService(store OTPStore, mailer Mailer, phones PhoneVerifier) *OTPService {
	return &OTPService{
		store:  store,
		mailer: mailer,
		phones: phones,
		now:    time.Now,
		codes:  generateCode,
	}
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SendEmailCode mails a fresh 6-digit code valid for 10 minutes.
func (s *OTPService) SendEmailCode(ctx context.Context, email, purpose string) error {
	email = NormalizeEmail(email)
	code, err := s.codes()
	if err != nil {
		return err
	}

	otp := &models.EmailOTP{
		Email:     email,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: s.now().Add(OTPTTL),
	}
	if err := s.store.SaveEmailOTP(ctx, otp); err != nil {
		return err
	}

	return s.mailer.Send(ctx, EmailMessage{
		To:      email,
		Subject: "Your verification code",
		HTML:    fmt.Sprintf("<p>Your verification code is <b>%s</b>. It expires in 10 minutes.</p>", code),
	})
}

// VerifyEmailCode consumes the latest code for email. A code works once.
func (s *OTPService) VerifyEmailCode(ctx context.Context, email, purpose, code string) error {
	otp, err := s.store.LatestEmailOTP(ctx, NormalizeEmail(email), purpose)
	if err != nil {
		return err
	}
	now := s.now()
	if otp.UsedAt != nil || !now.Before(otp.ExpiresAt) {
		return ErrInvalidCode
	}
	if err := s.claimAttempt(ctx, &models.EmailOTP{}, otp.ID, otp.Attempts); err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(otp.Code), []byte(strings.TrimSpace(code))) != 1 {
		return ErrInvalidCode
	}
	ok, err := s.store.MarkUsed(ctx, &models.EmailOTP{}, otp.ID, now)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode
	}
	return nil
}

// SendPhoneCode starts an SMS verification for phone.
func (s *OTPService) SendPhoneCode(ctx context.Context, phone string) error {
	if s.phones == nil || !s.phones.Enabled() {
		return ErrNotConfigured
	}
	sessionID, err := s.phones.SendCode(ctx, phone)
	if err != nil {
		return err
	}
	return s.store.SavePhoneVerification(ctx, &models.PhoneVerification{
		Phone:     phone,
		SessionID: sessionID,
		ExpiresAt: s.now().Add(OTPTTL),
	})
}

// VerifyPhoneCode checks code with the provider for the latest session of phone.
func (s *OTPService) VerifyPhoneCode(ctx context.Context, phone, code string) error {
	if s.phones == nil || !s.phones.Enabled() {
		return ErrNotConfigured
	}
	v, err := s.store.LatestPhoneVerification(ctx, phone)
	if err != nil {
		return err
	}
	now := s.now()
	if v.UsedAt != nil || !now.Before(v.ExpiresAt) {
		return ErrInvalidCode
	}
	if err := s.claimAttempt(ctx, &models.PhoneVerification{}, v.ID, v.Attempts); err != nil {
		return err
	}
	verified, err := s.phones.CheckCode(ctx, v.SessionID, strings.TrimSpace(code))
	if err != nil {
		return err
	}
	if !verified {
		return ErrInvalidCode
	}
	ok, err := s.store.MarkUsed(ctx, &models.PhoneVerification{}, v.ID, now)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode
	}
	return nil
}

// claimAttempt spends one of the code's checks before it is compared.
func (s *OTPService) claimAttempt(ctx context.Context, model any, id uuid.UUID, attempts int) error {
	if attempts >= MaxOTPAttempts {
		return ErrTooManyAttempts
	}
	ok, err := s.store.ClaimAttempt(ctx, model, id, MaxOTPAttempts)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTooManyAttempts
	}
	return nil
}

func generateCode() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
