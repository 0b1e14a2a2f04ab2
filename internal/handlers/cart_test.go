package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/utils"
)

type stubAuth struct{ user *models.User }

func (s stubAuth) Authenticate(_ context.Context, raw string) (*models.User, *utils.TokenClaims, error) {
	if raw != "good" {
		return nil, nil, services.ErrInvalidToken
	}
	return s.user, &utils.TokenClaims{}, nil
}

func (stubAuth) NeedsRotation(*utils.TokenClaims) bool { return false }

func (stubAuth) Rotate(context.Context, *models.User, string) (string, error) { return "", nil }

func (stubAuth) TTL() time.Duration { return time.Hour }

type memCart struct {
	lines    []models.CartItem
	version  int
	products map[uuid.UUID]*models.Product
	saveErr  error
}

func (m *memCart) LoadCart(context.Context, uuid.UUID) ([]models.CartItem, int, error) {
	return append([]models.CartItem(nil), m.lines...), m.version, nil
}

func (m *memCart) SaveCart(_ context.Context, _ uuid.UUID, version int, lines []models.CartItem) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if version != m.version {
		return services.ErrCartConflict
	}
	m.version++
	m.lines = nil
	for _, line := range lines {
		if line.ID == uuid.Nil {
			line.ID = uuid.New()
		}
		m.lines = append(m.lines, line)
	}
	return nil
}

func (m *memCart) FindProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	if p, ok := m.products[id]; ok {
		return p, nil
	}
	return nil, services.ErrProductNotFound
}

func (m *memCart) FindProducts(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	found := map[uuid.UUID]*models.Product{}
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			found[id] = p
		}
	}
	return found, nil
}

func newCartApp(t *testing.T) (*fiber.App, *memCart, *models.Product) {
	t.Helper()
	product := &models.Product{Title: "Linen shirt", Available: true}
	product.ID = uuid.New()
	product.Variants = []models.ProductVariant{{Size: "M", Price: 40, Discount: 30, Quantity: 3}}
	product.Variants[0].ID = uuid.New()

	store := &memCart{products: map[uuid.UUID]*models.Product{product.ID: product}}
	user := &models.User{Role: models.RoleUser}
	user.ID = uuid.New()

	gate := middleware.NewGate(stubAuth{user: user}, &config.Config{SessionCookie: "token"})
	handler := NewCartHandler(services.NewCartService(store, store), false)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	cart := app.Group("/api/cart", gate.RequireUser())
	cart.Get("/", handler.GetCart)
	cart.Post("/", handler.AddToCart)
	cart.Put("/:ref", handler.UpdateCartItem)
	cart.Delete("/:ref", handler.RemoveCartItem)
	cart.Delete("/", handler.ClearCart)
	return app, store, product
}

func do(t *testing.T, app *fiber.App, method, path, body string, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer good")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func flashCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == cartFlashCookie {
			return c
		}
	}
	return nil
}

func TestCartHandler_AddThenReadFlash(t *testing.T) {
	app, store, product := newCartApp(t)

	resp := do(t, app, http.MethodPost, "/api/cart", `{"product_id":"`+product.ID.String()+`","size":"M","direct":true}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var added map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&added))
	assert.Equal(t, "/cart", added["redirect"])
	require.Len(t, store.lines, 1)
	assert.Equal(t, 1, store.lines[0].Quantity, "quantity defaults to 1")

	flash := flashCookie(resp)
	require.NotNil(t, flash)

	resp = do(t, app, http.MethodGet, "/api/cart", "", flash)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Data  services.CartSummary `json:"data"`
		Flash *cartFlash           `json:"flash"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body.Flash)
	assert.Equal(t, "Product added to cart", body.Flash.Success)
	assert.Empty(t, body.Flash.Error)
	assert.InDelta(t, 30, body.Data.Total, 0.001)
	assert.InDelta(t, 10, body.Data.Discount, 0.001)
}

func TestCartHandler_FailureSetsErrorFlash(t *testing.T) {
	app, store, product := newCartApp(t)

	resp := do(t, app, http.MethodPost, "/api/cart", `{"product_id":"`+product.ID.String()+`","size":"M","quantity":5}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, store.lines)

	flash := flashCookie(resp)
	require.NotNil(t, flash)
	resp = do(t, app, http.MethodGet, "/api/cart", "", flash)
	var body struct {
		Flash *cartFlash `json:"flash"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body.Flash)
	assert.Equal(t, services.ErrInsufficientStock.Error(), body.Flash.Error)
	assert.Empty(t, body.Flash.Success)
}

func TestCartHandler_UpdateAndRemoveByProductID(t *testing.T) {
	app, store, product := newCartApp(t)
	require.Equal(t, http.StatusCreated, do(t, app, http.MethodPost, "/api/cart", `{"product_id":"`+product.ID.String()+`"}`).StatusCode)

	resp := do(t, app, http.MethodPut, "/api/cart/"+product.ID.String(), `{"quantity":3}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, store.lines[0].Quantity)

	resp = do(t, app, http.MethodDelete, "/api/cart/"+store.lines[0].ID.String(), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, store.lines)

	resp = do(t, app, http.MethodDelete, "/api/cart/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCartHandler_RejectsBadInput(t *testing.T) {
	app, _, _ := newCartApp(t)

	assert.Equal(t, http.StatusBadRequest, do(t, app, http.MethodPost, "/api/cart", `{"product_id":"nope"}`).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, app, http.MethodPost, "/api/cart", `{"product_id":"`+uuid.NewString()+`"}`).StatusCode)
}

func TestCartHandler_StorageFailureFlashIsGeneric(t *testing.T) {
	app, store, product := newCartApp(t)
	store.saveErr = errors.New("failed to connect to host=10.0.0.5 user=storefront password=hunter2")

	resp := do(t, app, http.MethodPost, "/api/cart", `{"product_id":"`+product.ID.String()+`"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	flash := flashCookie(resp)
	require.NotNil(t, flash)
	store.saveErr = nil
	resp = do(t, app, http.MethodGet, "/api/cart", "", flash)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hunter2")
	assert.NotContains(t, string(raw), "10.0.0.5")

	var body struct {
		Flash *cartFlash `json:"flash"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	require.NotNil(t, body.Flash)
	assert.Equal(t, "internal server error", body.Flash.Error)
}
