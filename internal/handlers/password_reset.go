package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/repository"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/utils"
)

// PasswordResetHandler manages forgot-password endpoints.
type PasswordResetHandler struct {
	users  *repository.UserRepository
	otp    *services.OTPService
	tokens *services.TokenIssuer
}

// NewPasswordResetHandler constructs a PasswordResetHandler.
func NewPasswordResetHandler(users *repository.UserRepository, otp *services.OTPService, tokens *services.TokenIssuer) *PasswordResetHandler {
	return &PasswordResetHandler{users: users, otp: otp, tokens: tokens}
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// ForgotPassword sends a reset code by email, or by SMS when only a phone is given.
func (h *PasswordResetHandler) ForgotPassword(c *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	email := services.NormalizeEmail(req.Email)
	phone := strings.TrimSpace(req.Phone)
	if email == "" && phone == "" {
		return fiber.NewError(fiber.StatusBadRequest, "email or phone is required")
	}

	ctx := c.UserContext()
	var err error
	if email != "" {
		_, err = h.users.FindByEmail(ctx, email)
	} else {
		_, err = h.users.FindByPhone(ctx, phone)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "user not found")
		}
		return err
	}

	if email != "" {
		err = h.otp.SendEmailCode(ctx, email, services.PurposePasswordReset)
	} else {
		err = h.otp.SendPhoneCode(ctx, phone)
	}
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "expires_in": int(services.OTPTTL.Seconds())})
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

// ResetPassword checks the code, sets the new password and signs out every session.
func (h *PasswordResetHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	email := services.NormalizeEmail(req.Email)
	phone := strings.TrimSpace(req.Phone)
	if (email == "" && phone == "") || strings.TrimSpace(req.Code) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "email or phone and code are required")
	}
	if err := utils.ValidatePassword(req.NewPassword); err != nil {
		verr := &models.ValidationError{}
		verr.Add("new_password", err.Error())
		return verr
	}

	ctx := c.UserContext()
	var (
		user *models.User
		err  error
	)
	if email != "" {
		if err = h.otp.VerifyEmailCode(ctx, email, services.PurposePasswordReset, req.Code); err != nil {
			return err
		}
		user, err = h.users.FindByEmail(ctx, email)
	} else {
		if err = h.otp.VerifyPhoneCode(ctx, phone, req.Code); err != nil {
			return err
		}
		user, err = h.users.FindByPhone(ctx, phone)
	}
	if err != nil {
		return err
	}

	passwordHash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}
	if err := h.users.Updates(ctx, user.ID, map[string]interface{}{
		"password_hash": passwordHash,
		"is_verified":   true,
	}); err != nil {
		return err
	}
	if err := h.tokens.RevokeAll(ctx, user.ID); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "password has been reset"})
}
