package middleware

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/utils"
)

const (
	userContextKey       = "currentUser"
	adminContextKey      = "currentAdmin"
	superAdminContextKey = "currentSuperAdmin"
	tokenContextKey      = "sessionToken"

	// SessionTokenHeader carries a rotated token for clients that do not keep cookies.
	SessionTokenHeader = "X-Session-Token"
)

// Authenticator resolves session tokens. services.TokenIssuer implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*models.User, *utils.TokenClaims, error)
	NeedsRotation(claims *utils.TokenClaims) bool
	Rotate(ctx context.Context, user *models.User, raw string) (string, error)
	TTL() time.Duration
}

// Gate authenticates requests and enforces role tiers.
type Gate struct {
	auth   Authenticator
	cookie string
	secure bool
}

// NewGate constructs a Gate using the session cookie settings from cfg.
func NewGate(auth Authenticator, cfg *config.Config) *Gate {
	return &Gate{auth: auth, cookie: cfg.SessionCookie, secure: cfg.CookieSecure}
}

// SetSession writes token into the session cookie.
func (g *Gate) SetSession(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     g.cookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(g.auth.TTL()),
		HTTPOnly: true,
		Secure:   g.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// ClearSession expires the session cookie.
func (g *Gate) ClearSession(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     g.cookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   g.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// credential reads the session cookie, then a Bearer Authorization header.
func (g *Gate) credential(c *fiber.Ctx) string {
	if token := c.Cookies(g.cookie); token != "" {
		return token
	}
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// RequireUser admits any authenticated account.
func (g *Gate) RequireUser() fiber.Handler {
	return g.require(func(models.Role) bool { return true }, "")
}

// RequireAdmin admits accounts whose role is exactly admin.
func (g *Gate) RequireAdmin() fiber.Handler {
	return g.Require(models.RoleAdmin)
}

// RequireSuperAdmin admits accounts whose role is exactly super-admin.
func (g *Gate) RequireSuperAdmin() fiber.Handler {
	return g.Require(models.RoleSuperAdmin)
}

// Require admits accounts whose role equals role.
func (g *Gate) Require(role models.Role) fiber.Handler {
	alias := ""
	switch role {
	case models.RoleAdmin:
		alias = adminContextKey
	case models.RoleSuperAdmin:
		alias = superAdminContextKey
	}
	return g.require(func(r models.Role) bool { return r == role }, alias)
}

func (g *Gate) require(allowed func(models.Role) bool, alias string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := g.credential(c)
		if raw == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
		}

		user, claims, err := g.auth.Authenticate(c.UserContext(), raw)
		if err != nil {
			g.ClearSession(c)
			if errors.Is(err, services.ErrInvalidToken) || errors.Is(err, services.ErrUnknownIdentity) {
				return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired session")
			}
			return err
		}

		if !allowed(user.Role) {
			g.ClearSession(c)
			return fiber.NewError(fiber.StatusForbidden, "insufficient permissions")
		}

		g.attach(c, user, claims, raw)
		if alias != "" {
			c.Locals(alias, user)
		}
		return c.Next()
	}
}

// Optional attaches the account when a valid credential is present and
// otherwise lets the request through anonymously.
func (g *Gate) Optional() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := g.credential(c)
		if raw == "" {
			return c.Next()
		}
		user, claims, err := g.auth.Authenticate(c.UserContext(), raw)
		if err != nil {
			if !errors.Is(err, services.ErrInvalidToken) && !errors.Is(err, services.ErrUnknownIdentity) {
				return err
			}
			g.ClearSession(c)
			return c.Next()
		}
		g.attach(c, user, claims, raw)
		return c.Next()
	}
}

// attach stores the account in Locals and rotates a token close to expiry.
// A failed rotation keeps the still valid current token.
func (g *Gate) attach(c *fiber.Ctx, user *models.User, claims *utils.TokenClaims, raw string) {
	token := raw
	if g.auth.NeedsRotation(claims) {
		rotated, err := g.auth.Rotate(c.UserContext(), user, raw)
		if err != nil {
			log.Printf("[Auth] token rotation for %s failed: %v", user.ID, err)
		} else {
			token = rotated
			g.SetSession(c, token)
			c.Set(SessionTokenHeader, token)
		}
	}
	c.Locals(userContextKey, user)
	c.Locals(tokenContextKey, token)
}

// GetCurrentUser returns the account attached by the Gate.
func GetCurrentUser(c *fiber.Ctx) (*models.User, bool) {
	user, ok := c.Locals(userContextKey).(*models.User)
	return user, ok && user != nil
}

// GetCurrentAdmin returns the account attached by RequireAdmin.
func GetCurrentAdmin(c *fiber.Ctx) (*models.User, bool) {
	user, ok := c.Locals(adminContextKey).(*models.User)
	return user, ok && user != nil
}

// GetCurrentSuperAdmin returns the account attached by RequireSuperAdmin.
func GetCurrentSuperAdmin(c *fiber.Ctx) (*models.User, bool) {
	user, ok := c.Locals(superAdminContextKey).(*models.User)
	return user, ok && user != nil
}

// GetSessionToken returns the token the request is currently authenticated with.
func GetSessionToken(c *fiber.Ctx) string {
	token, _ := c.Locals(tokenContextKey).(string)
	return token
}
