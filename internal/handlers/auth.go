package handlers

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/repository"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/utils"
)

const oauthStateCookie = "oauth_state"

// AuthHandler bundles dependencies for authentication endpoints.
type AuthHandler struct {
	users  *repository.UserRepository
	tokens *services.TokenIssuer
	gate   *middleware.Gate
	otp    *services.OTPService
	google *services.GoogleAuth
	cfg    *config.Config
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(users *repository.UserRepository, tokens *services.TokenIssuer, gate *middleware.Gate, otp *services.OTPService, google *services.GoogleAuth, cfg *config.Config) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, gate: gate, otp: otp, google: google, cfg: cfg}
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func (h *AuthHandler) startSession(c *fiber.Ctx, user *models.User, status int) error {
	token, err := h.tokens.Issue(c.UserContext(), user)
	if err != nil {
		return err
	}
	h.gate.SetSession(c, token)
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"user":    userResponse(user),
		"token":   token,
	})
}

// findOrCreate returns the account lookup finds, creating fresh when there is none.
func (h *AuthHandler) findOrCreate(ctx context.Context, lookup func() (*models.User, error), fresh *models.User) (*models.User, error) {
	user, err := lookup()
	if err == nil {
		if !user.IsVerified && fresh.IsVerified {
			if err := h.users.Updates(ctx, user.ID, map[string]interface{}{"is_verified": true}); err != nil {
				return nil, err
			}
			user.IsVerified = true
		}
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err := h.users.Create(ctx, fresh); err != nil {
		// A concurrent first login may have created it already.
		if existing, lookupErr := lookup(); lookupErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return fresh, nil
}

type registerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
}

func (r *registerRequest) validate() error {
	verr := &models.ValidationError{}
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = services.NormalizeEmail(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)

	if r.FirstName == "" {
		verr.Add("first_name", "first name is required")
	}
	if r.Email == "" && r.Phone == "" {
		verr.Add("email", "email or phone is required")
	}
	if r.Email != "" {
		if _, err := mail.ParseAddress(r.Email); err != nil {
			verr.Add("email", "email is invalid")
		}
	}
	if err := utils.ValidatePassword(r.Password); err != nil {
		verr.Add("password", err.Error())
	}
	return verr.OrNil()
}

// Register creates a new customer account and signs it in.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := req.validate(); err != nil {
		return err
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}

	user := models.User{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		DisplayName:  strings.TrimSpace(req.FirstName + " " + req.LastName),
		Email:        optionalString(req.Email),
		Phone:        optionalString(req.Phone),
		PasswordHash: passwordHash,
		Role:         models.RoleUser,
	}
	if err := h.users.Create(c.UserContext(), &user); err != nil {
		return err
	}

	return h.startSession(c, &user, fiber.StatusCreated)
}

type loginRequest struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Login authenticates with an email or phone and a password.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	identifier := strings.TrimSpace(req.Login)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	if identifier == "" {
		identifier = strings.TrimSpace(req.Phone)
	}
	if identifier == "" || req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "login and password are required")
	}

	user, err := h.users.FindByLogin(c.UserContext(), identifier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
		}
		return err
	}
	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}

	return h.startSession(c, user, fiber.StatusOK)
}

// Logout revokes the token of the current session.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.tokens.Revoke(c.UserContext(), user.ID, middleware.GetSessionToken(c)); err != nil {
		return err
	}
	h.gate.ClearSession(c)
	return c.JSON(fiber.Map{"success": true})
}

// LogoutAll revokes every session of the current account.
func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.tokens.RevokeAll(c.UserContext(), user.ID); err != nil {
		return err
	}
	h.gate.ClearSession(c)
	return c.JSON(fiber.Map{"success": true})
}

// Me returns the signed-in account.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "user": userResponse(user)})
}

type emailCodeRequest struct {
	Email     string `json:"email"`
	Code      string `json:"code"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// SendEmailCode mails a login code.
func (h *AuthHandler) SendEmailCode(c *fiber.Ctx) error {
	var req emailCodeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	email := services.NormalizeEmail(req.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		verr := &models.ValidationError{}
		verr.Add("email", "email is invalid")
		return verr
	}
	if err := h.otp.SendEmailCode(c.UserContext(), email, services.PurposeLogin); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "expires_in": int(services.OTPTTL.Seconds())})
}

// VerifyEmailCode signs in with an emailed code, creating the account on first use.
func (h *AuthHandler) VerifyEmailCode(c *fiber.Ctx) error {
	var req emailCodeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	email := services.NormalizeEmail(req.Email)
	if email == "" || strings.TrimSpace(req.Code) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "email and code are required")
	}
	ctx := c.UserContext()
	if err := h.otp.VerifyEmailCode(ctx, email, services.PurposeLogin, req.Code); err != nil {
		return err
	}

	firstName := strings.TrimSpace(req.FirstName)
	if firstName == "" {
		firstName = strings.SplitN(email, "@", 2)[0]
	}
	user, err := h.findOrCreate(ctx,
		func() (*models.User, error) { return h.users.FindByEmail(ctx, email) },
		&models.User{
			FirstName:   firstName,
			LastName:    strings.TrimSpace(req.LastName),
			DisplayName: strings.TrimSpace(firstName + " " + req.LastName),
			Email:       &email,
			Role:        models.RoleUser,
			IsVerified:  true,
		})
	if err != nil {
		return err
	}
	return h.startSession(c, user, fiber.StatusOK)
}

type phoneCodeRequest struct {
	Phone     string `json:"phone"`
	Code      string `json:"code"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// SendPhoneCode starts an SMS login.
func (h *AuthHandler) SendPhoneCode(c *fiber.Ctx) error {
	var req phoneCodeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		return fiber.NewError(fiber.StatusBadRequest, "phone is required")
	}
	if err := h.otp.SendPhoneCode(c.UserContext(), phone); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "expires_in": int(services.OTPTTL.Seconds())})
}

// VerifyPhoneCode signs in with an SMS code, creating the account on first use.
func (h *AuthHandler) VerifyPhoneCode(c *fiber.Ctx) error {
	var req phoneCodeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	phone := strings.TrimSpace(req.Phone)
	if phone == "" || strings.TrimSpace(req.Code) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "phone and code are required")
	}
	ctx := c.UserContext()
	if err := h.otp.VerifyPhoneCode(ctx, phone, req.Code); err != nil {
		return err
	}

	user, err := h.findOrCreate(ctx,
		func() (*models.User, error) { return h.users.FindByPhone(ctx, phone) },
		&models.User{
			FirstName:   strings.TrimSpace(req.FirstName),
			LastName:    strings.TrimSpace(req.LastName),
			DisplayName: strings.TrimSpace(req.FirstName + " " + req.LastName),
			Phone:       &phone,
			Role:        models.RoleUser,
			IsVerified:  true,
		})
	if err != nil {
		return err
	}
	return h.startSession(c, user, fiber.StatusOK)
}

// GoogleStart redirects the browser to Google's consent screen.
func (h *AuthHandler) GoogleStart(c *fiber.Ctx) error {
	if !h.google.Enabled() {
		return services.ErrNotConfigured
	}

	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return err
	}
	state := hex.EncodeToString(raw)

	c.Cookie(&fiber.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HTTPOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.Redirect(h.google.AuthCodeURL(state), fiber.StatusFound)
}

// GoogleCallback finishes the OAuth2 flow and signs the account in.
func (h *AuthHandler) GoogleCallback(c *fiber.Ctx) error {
	expected := c.Cookies(oauthStateCookie)
	c.ClearCookie(oauthStateCookie)

	state := c.Query("state")
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid oauth state")
	}
	code := c.Query("code")
	if code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing authorization code")
	}

	ctx := c.UserContext()
	profile, err := h.google.Exchange(ctx, code)
	if err != nil {
		return err
	}

	email := services.NormalizeEmail(profile.Email)
	firstName := profile.GivenName
	if firstName == "" {
		firstName = profile.Name
	}
	user, err := h.findOrCreate(ctx,
		func() (*models.User, error) { return h.users.FindByEmail(ctx, email) },
		&models.User{
			FirstName:   firstName,
			LastName:    profile.FamilyName,
			DisplayName: profile.Name,
			Email:       &email,
			Role:        models.RoleUser,
			IsVerified:  profile.EmailVerified,
		})
	if err != nil {
		return err
	}
	return h.startSession(c, user, fiber.StatusOK)
}
