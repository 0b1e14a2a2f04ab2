package handlers

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/services"
)

const cartFlashCookie = "cart_flash"

// cartFlash is the outcome of the last cart change, shown once on the next cart read.
type cartFlash struct {
	Success string `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CartHandler manages the signed-in user's cart.
type CartHandler struct {
	carts  *services.CartService
	secure bool
}

// NewCartHandler constructs CartHandler.
func NewCartHandler(carts *services.CartService, secureCookies bool) *CartHandler {
	return &CartHandler{carts: carts, secure: secureCookies}
}

// setFlash overwrites the flash pair with the outcome of err.
func (h *CartHandler) setFlash(c *fiber.Ctx, success string, err error) {
	flash := cartFlash{Success: success}
	if err != nil {
		_, message, _ := middleware.Classify(err)
		flash = cartFlash{Error: message}
	}
	raw, _ := json.Marshal(flash)
	c.Cookie(&fiber.Cookie{
		Name:     cartFlashCookie,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		Expires:  time.Now().Add(5 * time.Minute),
		HTTPOnly: true,
		Secure:   h.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// takeFlash reads and clears the flash pair.
func (h *CartHandler) takeFlash(c *fiber.Ctx) *cartFlash {
	value := c.Cookies(cartFlashCookie)
	if value == "" {
		return nil
	}
	c.ClearCookie(cartFlashCookie)

	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil
	}
	var flash cartFlash
	if err := json.Unmarshal(raw, &flash); err != nil {
		return nil
	}
	return &flash
}

// GetCart returns the cart summary and the pending flash message.
func (h *CartHandler) GetCart(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	summary, err := h.carts.Summary(c.UserContext(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    summary,
		"flash":   h.takeFlash(c),
	})
}

type addToCartRequest struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
	Direct    bool   `json:"direct"`
}

// AddToCart puts a product size into the cart. With direct set the
// response points the client straight at the cart.
func (h *CartHandler) AddToCart(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req addToCartRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid product_id")
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	err = h.carts.Add(c.UserContext(), user.ID, productID, req.Size, req.Quantity)
	h.setFlash(c, "Product added to cart", err)
	if err != nil {
		return err
	}

	resp := fiber.Map{"success": true, "message": "Product added to cart"}
	if req.Direct {
		resp["redirect"] = "/cart"
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

type updateCartRequest struct {
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

// UpdateCartItem changes size and quantity of a line. The :ref param is a
// line id or a product id.
func (h *CartHandler) UpdateCartItem(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req updateCartRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	err = h.carts.Update(c.UserContext(), user.ID, c.Params("ref"), req.Size, req.Quantity)
	h.setFlash(c, "Cart updated", err)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "Cart updated"})
}

// RemoveCartItem drops one line.
func (h *CartHandler) RemoveCartItem(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	err = h.carts.Remove(c.UserContext(), user.ID, c.Params("ref"))
	h.setFlash(c, "Product removed from cart", err)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "Product removed from cart"})
}

// ClearCart empties the cart.
func (h *CartHandler) ClearCart(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.carts.Clear(c.UserContext(), user.ID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}
