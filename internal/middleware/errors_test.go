package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/services"
)

func TestClassify(t *testing.T) {
	validation := &models.ValidationError{}
	validation.Add("title", "is required")

	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"fiber error", fiber.NewError(http.StatusTeapot, "short and stout"), http.StatusTeapot, "short and stout"},
		{"validation", validation, http.StatusBadRequest, "validation failed"},
		{"wrapped sentinel", fmt.Errorf("add: %w", services.ErrInsufficientStock), http.StatusBadRequest, services.ErrInsufficientStock.Error()},
		{"conflict", services.ErrCartConflict, http.StatusConflict, services.ErrCartConflict.Error()},
		{"too many attempts", services.ErrTooManyAttempts, http.StatusTooManyRequests, services.ErrTooManyAttempts.Error()},
		{"foreign key", fmt.Errorf("delete: %w", &pgconn.PgError{Code: "23503", ConstraintName: "fk_enquiries_user"}), http.StatusConflict, "resource is still referenced"},
		{"missing product", services.ErrProductNotFound, http.StatusNotFound, services.ErrProductNotFound.Error()},
		{"not configured", services.ErrNotConfigured, http.StatusServiceUnavailable, "this feature is not available"},
		{"record not found", gorm.ErrRecordNotFound, http.StatusNotFound, "resource not found"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg, _ := Classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.msg, msg)
		})
	}
}

func TestClassify_UniqueViolation(t *testing.T) {
	err := fmt.Errorf("create user: %w", &pgconn.PgError{
		Code:           "23505",
		Detail:         "Key (email)=(a@example.com) already exists.",
		ConstraintName: "idx_users_email",
	})
	status, msg, fields := Classify(err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "email already exists", msg)
	assert.Equal(t, map[string]string{"email": "already exists"}, fields)

	field := duplicateField(&pgconn.PgError{ConstraintName: "idx_users_phone"})
	assert.Equal(t, "phone", field)
}

func TestErrorHandler_Envelope(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/", func(c *fiber.Ctx) error {
		verr := &models.ValidationError{}
		verr.Add("images", "must contain between 3 and 7 images")
		return verr
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body struct {
		Success bool              `json:"success"`
		Error   string            `json:"error"`
		Fields  map[string]string `json:"fields"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, "validation failed", body.Error)
	assert.Contains(t, body.Fields, "images")
}
