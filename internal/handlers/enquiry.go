package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/utils"
)

// EnquiryHandler serves customer and staff enquiry endpoints.
type EnquiryHandler struct {
	enquiries *services.EnquiryService
}

// NewEnquiryHandler constructs EnquiryHandler.
func NewEnquiryHandler(enquiries *services.EnquiryService) *EnquiryHandler {
	return &EnquiryHandler{enquiries: enquiries}
}

type createEnquiryRequest struct {
	ProductID    string `json:"product_id"`
	Quantity     int    `json:"quantity"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
	Notes        string `json:"notes"`
}

// CreateEnquiry raises an enquiry for one product, or for the whole cart
// when no product_id is given.
func (h *EnquiryHandler) CreateEnquiry(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req createEnquiryRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	contact := services.Contact{Email: req.ContactEmail, Phone: req.ContactPhone}
	notes := strings.TrimSpace(req.Notes)

	var enquiry *models.Enquiry
	if req.ProductID != "" {
		productID, parseErr := uuid.Parse(req.ProductID)
		if parseErr != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid product_id")
		}
		if req.Quantity == 0 {
			req.Quantity = 1
		}
		enquiry, err = h.enquiries.CreateForProduct(c.UserContext(), user, productID, req.Quantity, contact, notes)
	} else {
		enquiry, err = h.enquiries.CreateFromCart(c.UserContext(), user, contact, notes)
	}
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": enquiry})
}

// ListMyEnquiries pages through the caller's enquiries.
func (h *EnquiryHandler) ListMyEnquiries(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	pg := utils.ParsePagination(c)
	enquiries, total, err := h.enquiries.List(c.UserContext(), services.EnquiryFilter{
		UserID: &user.ID,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": enquiries, "pagination": pg.Meta(total)})
}

// GetEnquiry returns one enquiry. Customers only see their own; staff see all.
func (h *EnquiryHandler) GetEnquiry(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	enquiry, err := h.enquiries.Get(c.UserContext(), id, user)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": enquiry})
}

// ListAllEnquiries pages through every enquiry, optionally by status.
func (h *EnquiryHandler) ListAllEnquiries(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	enquiries, total, err := h.enquiries.List(c.UserContext(), services.EnquiryFilter{
		Status: models.EnquiryStatus(c.Query("status")),
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": enquiries, "pagination": pg.Meta(total)})
}

type updateEnquiryRequest struct {
	Status models.EnquiryStatus `json:"status"`
	Notes  *string              `json:"notes"`
}

// UpdateEnquiry sets status and notes of an enquiry.
func (h *EnquiryHandler) UpdateEnquiry(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req updateEnquiryRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	enquiry, err := h.enquiries.UpdateStatus(c.UserContext(), id, req.Status, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": enquiry})
}
