package middleware

import (
	"errors"
	"log"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/utils"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

var duplicateKeyDetail = regexp.MustCompile(`^Key \(([^)]+)\)=`)

var statusBySentinel = []struct {
	err    error
	status int
}{
	{services.ErrProductNotFound, fiber.StatusNotFound},
	{services.ErrCartLineNotFound, fiber.StatusNotFound},
	{services.ErrWishlistItemNotFound, fiber.StatusNotFound},
	{services.ErrEnquiryNotFound, fiber.StatusNotFound},
	{services.ErrOutOfStock, fiber.StatusBadRequest},
	{services.ErrInsufficientStock, fiber.StatusBadRequest},
	{services.ErrInvalidQuantity, fiber.StatusBadRequest},
	{services.ErrEmptyCart, fiber.StatusBadRequest},
	{services.ErrInvalidStatus, fiber.StatusBadRequest},
	{services.ErrInvalidCode, fiber.StatusBadRequest},
	{utils.ErrWeakPassword, fiber.StatusBadRequest},
	{services.ErrCartConflict, fiber.StatusConflict},
	{services.ErrTooManyAttempts, fiber.StatusTooManyRequests},
	{services.ErrInvalidToken, fiber.StatusUnauthorized},
	{services.ErrUnknownIdentity, fiber.StatusUnauthorized},
	{services.ErrNotConfigured, fiber.StatusServiceUnavailable},
}

// ErrorHandler renders every error returned by a handler as the JSON
// envelope {"success": false, "error": ..., "fields": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status, message, fields := Classify(err)
	if status >= fiber.StatusInternalServerError {
		log.Printf("[Error] %s %s: %v", c.Method(), c.OriginalURL(), err)
	}

	body := fiber.Map{"success": false, "error": message}
	if len(fields) > 0 {
		body["fields"] = fields
	}
	return c.Status(status).JSON(body)
}

// Classify maps err to the status and the message safe to show a client.
// Anything unrecognised is a 500 with a generic message.
func Classify(err error) (int, string, map[string]string) {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, fiberErr.Message, nil
	}

	var validation *models.ValidationError
	if errors.As(err, &validation) {
		return fiber.StatusBadRequest, "validation failed", validation.Fields
	}

	for _, entry := range statusBySentinel {
		if errors.Is(err, entry.err) {
			if errors.Is(err, services.ErrNotConfigured) {
				return entry.status, "this feature is not available", nil
			}
			return entry.status, entry.err.Error(), nil
		}
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.StatusNotFound, "resource not found", nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			field := duplicateField(pgErr)
			return fiber.StatusBadRequest, field + " already exists", map[string]string{field: "already exists"}
		case foreignKeyViolation:
			return fiber.StatusConflict, "resource is still referenced", nil
		}
	}

	if isTokenError(err) {
		return fiber.StatusUnauthorized, "invalid or expired session", nil
	}

	return fiber.StatusInternalServerError, "internal server error", nil
}

// duplicateField names the column behind a unique violation, from the
// detail message when present, else from the index name.
func duplicateField(pgErr *pgconn.PgError) string {
	if m := duplicateKeyDetail.FindStringSubmatch(pgErr.Detail); m != nil {
		return m[1]
	}
	if i := strings.LastIndex(pgErr.ConstraintName, "_"); i >= 0 && i+1 < len(pgErr.ConstraintName) {
		return pgErr.ConstraintName[i+1:]
	}
	return "value"
}

func isTokenError(err error) bool {
	for _, target := range []error{
		jwt.ErrTokenMalformed,
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrTokenExpired,
		jwt.ErrTokenNotValidYet,
		jwt.ErrTokenInvalidClaims,
		jwt.ErrTokenUnverifiable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
