package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/storefront/internal/services"
)

// WishlistHandler manages the signed-in user's wishlist.
type WishlistHandler struct {
	wishlists *services.WishlistService
}

// NewWishlistHandler constructs WishlistHandler.
func NewWishlistHandler(wishlists *services.WishlistService) *WishlistHandler {
	return &WishlistHandler{wishlists: wishlists}
}

type wishlistEntryResponse struct {
	ProductID uuid.UUID            `json:"product_id"`
	AddedAt   time.Time            `json:"added_at"`
	Product   services.ProductView `json:"product"`
}

// GetWishlist returns the wishlist with products resolved.
func (h *WishlistHandler) GetWishlist(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	entries, err := h.wishlists.Get(c.UserContext(), user.ID)
	if err != nil {
		return err
	}

	data := make([]wishlistEntryResponse, 0, len(entries))
	for _, entry := range entries {
		data = append(data, wishlistEntryResponse{
			ProductID: entry.ProductID,
			AddedAt:   entry.AddedAt,
			Product:   services.NewProductView(entry.Product),
		})
	}
	return c.JSON(fiber.Map{"success": true, "data": data})
}

type wishlistRequest struct {
	ProductID string `json:"product_id"`
}

// AddToWishlist adds a product. Adding a listed product again is a no-op.
func (h *WishlistHandler) AddToWishlist(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req wishlistRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid product_id")
	}
	if err := h.wishlists.Add(c.UserContext(), user.ID, productID); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true})
}

// RemoveFromWishlist removes a product.
func (h *WishlistHandler) RemoveFromWishlist(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	productID, err := parseID(c, "productId")
	if err != nil {
		return err
	}
	if err := h.wishlists.Remove(c.UserContext(), user.ID, productID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

// ClearWishlist empties the wishlist.
func (h *WishlistHandler) ClearWishlist(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.wishlists.Clear(c.UserContext(), user.ID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}
