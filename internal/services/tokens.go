package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/utils"
)

// TokenStore persists the per-user list of active session tokens.
type TokenStore interface {
	FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	// AddToken appends token and prunes the list to the keep most recently issued.
	AddToken(ctx context.Context, token models.UserToken, keep int) error
	HasToken(ctx context.Context, userID uuid.UUID, digest string) (bool, error)
	RemoveToken(ctx context.Context, userID uuid.UUID, digest string) error
	ClearTokens(ctx context.Context, userID uuid.UUID) error
	TouchLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// TokenIssuer mints, validates and rotates session tokens.
type TokenIssuer struct {
	store       TokenStore
	secret      string
	ttl         time.Duration
	renewBefore time.Duration
	now         func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer.
func NewTokenIssuer(store TokenStore, secret string, ttl, renewBefore time.Duration) *TokenIssuer {
	return &TokenIssuer{
		store:       store,
		secret:      secret,
		ttl:         ttl,
		renewBefore: renewBefore,
		now:         time.Now,
	}
}

// TTL is the lifetime of newly issued tokens.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a new token for user and records it in the active list.
func (i *TokenIssuer) Issue(ctx context.Context, user *models.User) (string, error) {
	issuedAt := i.now()
	signed, claims, err := utils.GenerateToken(i.secret, user.ID, string(user.Role), issuedAt, i.ttl)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	record := models.UserToken{
		UserID:    user.ID,
		Digest:    utils.TokenDigest(signed),
		IssuedAt:  issuedAt,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := i.store.AddToken(ctx, record, models.MaxActiveTokens); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	if err := i.store.TouchLastLogin(ctx, user.ID, issuedAt); err != nil {
		return "", fmt.Errorf("update last login: %w", err)
	}
	user.LastLoginAt = &issuedAt

	return signed, nil
}

// Authenticate verifies raw and resolves the user it belongs to. The token
// must still be in the user's active list.
func (i *TokenIssuer) Authenticate(ctx context.Context, raw string) (*models.User, *utils.TokenClaims, error) {
	claims, err := utils.ParseToken(i.secret, raw, jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID := uuid.MustParse(claims.UserID)
	user, err := i.store.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUnknownIdentity) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("load user: %w", err)
	}

	active, err := i.store.HasToken(ctx, userID, utils.TokenDigest(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("check token: %w", err)
	}
	if !active {
		return nil, nil, ErrUnknownIdentity
	}

	return user, claims, nil
}

// NeedsRotation reports whether claims are close enough to expiry to renew.
func (i *TokenIssuer) NeedsRotation(claims *utils.TokenClaims) bool {
	return claims.Remaining(i.now()) < i.renewBefore
}

// Rotate replaces raw with a freshly issued token.
func (i *TokenIssuer) Rotate(ctx context.Context, user *models.User, raw string) (string, error) {
	if err := i.store.RemoveToken(ctx, user.ID, utils.TokenDigest(raw)); err != nil {
		return "", fmt.Errorf("remove rotated token: %w", err)
	}
	return i.Issue(ctx, user)
}

// Revoke drops a single token, used by logout.
func (i *TokenIssuer) Revoke(ctx context.Context, userID uuid.UUID, raw string) error {
	return i.store.RemoveToken(ctx, userID, utils.TokenDigest(raw))
}

// RevokeAll invalidates every session of the user immediately.
func (i *TokenIssuer) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	return i.store.ClearTokens(ctx, userID)
}
