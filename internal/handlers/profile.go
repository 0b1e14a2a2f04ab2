package handlers

import (
	"net/mail"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/repository"
	"github.com/example/storefront/internal/services"
)

// ProfileHandler manages user profile endpoints.
type ProfileHandler struct {
	users *repository.UserRepository
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(users *repository.UserRepository) *ProfileHandler {
	return &ProfileHandler{users: users}
}

// GetProfile returns the authenticated user's profile and addresses.
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	addresses, err := h.users.ListAddresses(c.UserContext(), user.ID)
	if err != nil {
		return err
	}

	data := userResponse(user)
	data["addresses"] = addresses
	return c.JSON(fiber.Map{"success": true, "data": data})
}

type updateProfileRequest struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	DisplayName *string `json:"display_name"`
	Email       *string `json:"email"`
	Phone       *string `json:"phone"`
}

// UpdateProfile updates user profile fields. Duplicate email or phone
// values are rejected by the unique indexes.
func (h *ProfileHandler) UpdateProfile(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	var req updateProfileRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	verr := &models.ValidationError{}
	updates := map[string]interface{}{}
	if req.FirstName != nil {
		if name := strings.TrimSpace(*req.FirstName); name != "" {
			updates["first_name"] = name
		} else {
			verr.Add("first_name", "cannot be empty")
		}
	}
	if req.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*req.LastName)
	}
	if req.DisplayName != nil {
		updates["display_name"] = strings.TrimSpace(*req.DisplayName)
	}
	if req.Email != nil {
		email := services.NormalizeEmail(*req.Email)
		if _, err := mail.ParseAddress(email); email != "" && err != nil {
			verr.Add("email", "email is invalid")
		}
		updates["email"] = optionalString(email)
	}
	if req.Phone != nil {
		updates["phone"] = optionalString(strings.TrimSpace(*req.Phone))
	}
	if err := verr.OrNil(); err != nil {
		return err
	}
	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no fields to update")
	}

	email, emailSet := updates["email"]
	phone, phoneSet := updates["phone"]
	emailGone := emailSet && email.(*string) == nil || !emailSet && user.Email == nil
	phoneGone := phoneSet && phone.(*string) == nil || !phoneSet && user.Phone == nil
	if emailGone && phoneGone {
		return fiber.NewError(fiber.StatusBadRequest, "an account needs an email or a phone")
	}

	if err := h.users.Updates(c.UserContext(), user.ID, updates); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "message": "profile updated"})
}

// Address endpoints

// ListAddresses returns user addresses, default first.
func (h *ProfileHandler) ListAddresses(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	addresses, err := h.users.ListAddresses(c.UserContext(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": addresses})
}

type addressRequest struct {
	Label       *string `json:"label"`
	FullName    *string `json:"full_name"`
	Phone       *string `json:"phone"`
	AddressLine *string `json:"address_line"`
	Apartment   *string `json:"apartment"`
	City        *string `json:"city"`
	State       *string `json:"state"`
	PostalCode  *string `json:"postal_code"`
	Country     *string `json:"country"`
	IsDefault   *bool   `json:"is_default"`
}

func (r addressRequest) apply(address *models.UserAddress) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&address.Label, r.Label)
	set(&address.FullName, r.FullName)
	set(&address.Phone, r.Phone)
	set(&address.AddressLine, r.AddressLine)
	set(&address.Apartment, r.Apartment)
	set(&address.City, r.City)
	set(&address.State, r.State)
	set(&address.PostalCode, r.PostalCode)
	set(&address.Country, r.Country)
	if r.IsDefault != nil {
		address.IsDefault = *r.IsDefault
	}
}

func validateAddress(address *models.UserAddress) error {
	verr := &models.ValidationError{}
	if address.AddressLine == "" {
		verr.Add("address_line", "is required")
	}
	if address.City == "" {
		verr.Add("city", "is required")
	}
	return verr.OrNil()
}

// CreateAddress creates an address for the user.
func (h *ProfileHandler) CreateAddress(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req addressRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	address := models.UserAddress{UserID: user.ID}
	req.apply(&address)
	if err := validateAddress(&address); err != nil {
		return err
	}
	if err := h.users.SaveAddress(c.UserContext(), &address); err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": address})
}

// UpdateAddress updates a user address.
func (h *ProfileHandler) UpdateAddress(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	addrID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req addressRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	ctx := c.UserContext()
	address, err := h.users.FindAddress(ctx, user.ID, addrID)
	if err != nil {
		return err
	}
	req.apply(address)
	if err := validateAddress(address); err != nil {
		return err
	}
	if err := h.users.SaveAddress(ctx, address); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": address})
}

// DeleteAddress removes a user address.
func (h *ProfileHandler) DeleteAddress(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	addrID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := h.users.DeleteAddress(c.UserContext(), user.ID, addrID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "address deleted"})
}
