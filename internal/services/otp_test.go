package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOTP(phones PhoneVerifier) (*OTPService, *memStore, *fakeMailer, *fakeClock) {
	store := newMemStore()
	mailer := &fakeMailer{}
	clock := &fakeClock{t: time.Now()}
	svc := NewOTPService(store, mailer, phones)
	svc.now = clock.Now
	svc.codes = func() (string, error) { return "123456", nil }
	return svc, store, mailer, clock
}

func TestOTPService_EmailCodeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	svc, _, mailer, _ := newTestOTP(nil)

	require.NoError(t, svc.SendEmailCode(ctx, " Shopper@Example.com ", PurposeLogin))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "shopper@example.com", mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].HTML, "123456")

	assert.ErrorIs(t, svc.VerifyEmailCode(ctx, "shopper@example.com", PurposeLogin, "000000"), ErrInvalidCode)
	require.NoError(t, svc.VerifyEmailCode(ctx, "SHOPPER@example.com", PurposeLogin, " 123456 "))
	assert.ErrorIs(t, svc.VerifyEmailCode(ctx, "shopper@example.com", PurposeLogin, "123456"), ErrInvalidCode)
}

func TestOTPService_EmailCodeExpires(t *testing.T) {
	ctx := context.Background()
	svc, _, _, clock := newTestOTP(nil)

	require.NoError(t, svc.SendEmailCode(ctx, "a@example.com", PurposeLogin))
	clock.Advance(OTPTTL)
	assert.ErrorIs(t, svc.VerifyEmailCode(ctx, "a@example.com", PurposeLogin, "123456"), ErrInvalidCode)
}

func TestOTPService_PurposeIsolated(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestOTP(nil)

	require.NoError(t, svc.SendEmailCode(ctx, "a@example.com", PurposePasswordReset))
	assert.ErrorIs(t, svc.VerifyEmailCode(ctx, "a@example.com", PurposeLogin, "123456"), ErrInvalidCode)
	assert.NoError(t, svc.VerifyEmailCode(ctx, "a@example.com", PurposePasswordReset, "123456"))
}

func TestOTPService_Phone(t *testing.T) {
	ctx := context.Background()
	phones := &fakePhones{enabled: true, code: "4321"}
	svc, store, _, _ := newTestOTP(phones)

	require.NoError(t, svc.SendPhoneCode(ctx, "+998900000000"))
	assert.Equal(t, 1, phones.sends)
	require.Len(t, store.phoneOTPs, 1)
	assert.Equal(t, "session-+998900000000", store.phoneOTPs[0].SessionID)

	assert.ErrorIs(t, svc.VerifyPhoneCode(ctx, "+998900000000", "0000"), ErrInvalidCode)
	require.NoError(t, svc.VerifyPhoneCode(ctx, "+998900000000", "4321"))
	assert.ErrorIs(t, svc.VerifyPhoneCode(ctx, "+998900000000", "4321"), ErrInvalidCode)
	assert.ErrorIs(t, svc.VerifyPhoneCode(ctx, "+998911111111", "4321"), ErrInvalidCode)
}

func TestOTPService_EmailCodeLocksAfterFailedAttempts(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newTestOTP(nil)

	require.NoError(t, svc.SendEmailCode(ctx, "a@example.com", PurposeLogin))
	for i := 0; i < MaxOTPAttempts; i++ {
		assert.ErrorIs(t, svc.VerifyEmailCode(ctx, "a@example.com", PurposeLogin, "000000"), ErrInvalidCode, "guess %d", i+1)
	}
	assert.Equal(t, MaxOTPAttempts, store.emailOTPs[0].Attempts)

	assert.ErrorIs(t, svc.VerifyEmailCode(ctx, "a@example.com", PurposeLogin, "123456"), ErrTooManyAttempts)
	assert.Nil(t, store.emailOTPs[0].UsedAt)

	require.NoError(t, svc.SendEmailCode(ctx, "a@example.com", PurposeLogin))
	assert.NoError(t, svc.VerifyEmailCode(ctx, "a@example.com", PurposeLogin, "123456"), "a new code starts a fresh count")
}

func TestOTPService_PhoneCodeLocksAfterFailedAttempts(t *testing.T) {
	ctx := context.Background()
	phones := &fakePhones{enabled: true, code: "4321"}
	svc, _, _, _ := newTestOTP(phones)

	require.NoError(t, svc.SendPhoneCode(ctx, "+998900000000"))
	for i := 0; i < MaxOTPAttempts; i++ {
		assert.ErrorIs(t, svc.VerifyPhoneCode(ctx, "+998900000000", "0000"), ErrInvalidCode)
	}
	assert.ErrorIs(t, svc.VerifyPhoneCode(ctx, "+998900000000", "4321"), ErrTooManyAttempts)
}

func TestOTPService_PhoneDisabled(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestOTP(&fakePhones{enabled: false})

	assert.ErrorIs(t, svc.SendPhoneCode(ctx, "+1"), ErrNotConfigured)
	assert.ErrorIs(t, svc.VerifyPhoneCode(ctx, "+1", "1"), ErrNotConfigured)
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		assert.Len(t, code, OTPLength)
	}
}
