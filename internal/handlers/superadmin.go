package handlers

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/repository"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/utils"
)

// SuperAdminHandler manages admin accounts and the cross-entity dashboard.
type SuperAdminHandler struct {
	users     *repository.UserRepository
	products  *repository.ProductRepository
	enquiries *repository.EnquiryRepository
	service   *services.EnquiryService
	tokens    *services.TokenIssuer
}

// NewSuperAdminHandler constructs SuperAdminHandler.
func NewSuperAdminHandler(users *repository.UserRepository, products *repository.ProductRepository, enquiries *repository.EnquiryRepository, service *services.EnquiryService, tokens *services.TokenIssuer) *SuperAdminHandler {
	return &SuperAdminHandler{users: users, products: products, enquiries: enquiries, service: service, tokens: tokens}
}

// Dashboard returns counts for every entity plus paged customers, admins,
// products and enquiries. Each list pages independently by its prefix.
func (h *SuperAdminHandler) Dashboard(c *fiber.Ctx) error {
	ctx := c.UserContext()
	usersPg := utils.ParsePaginationWithPrefix(c, "users")
	adminsPg := utils.ParsePaginationWithPrefix(c, "admins")
	productsPg := utils.ParsePaginationWithPrefix(c, "products")
	enquiriesPg := utils.ParsePaginationWithPrefix(c, "enquiries")

	byRole, err := h.users.CountByRole(ctx)
	if err != nil {
		return err
	}
	totalProducts, availableProducts, err := h.products.Count(ctx)
	if err != nil {
		return err
	}
	byStatus, err := h.enquiries.CountByStatus(ctx)
	if err != nil {
		return err
	}
	var totalEnquiries int64
	for _, n := range byStatus {
		totalEnquiries += n
	}

	users, totalUsers, err := h.users.List(ctx, models.RoleUser, "", usersPg)
	if err != nil {
		return err
	}
	admins, totalAdmins, err := h.users.List(ctx, models.RoleAdmin, "", adminsPg)
	if err != nil {
		return err
	}
	products, _, err := productsPage(ctx, h.products, productsPg)
	if err != nil {
		return err
	}
	enquiries, _, err := enquiriesPage(ctx, h.service, enquiriesPg)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"stats": fiber.Map{
				"users_by_role":       byRole,
				"total_products":      totalProducts,
				"available_products":  availableProducts,
				"total_enquiries":     totalEnquiries,
				"enquiries_by_status": byStatus,
			},
			"users": fiber.Map{
				"items":      usersResponse(users),
				"pagination": usersPg.Meta(totalUsers),
			},
			"admins": fiber.Map{
				"items":      usersResponse(admins),
				"pagination": adminsPg.Meta(totalAdmins),
			},
			"products":  products,
			"enquiries": enquiries,
		},
	})
}

// ListAdmins pages through admin accounts.
func (h *SuperAdminHandler) ListAdmins(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	admins, total, err := h.users.List(c.UserContext(), models.RoleAdmin, strings.TrimSpace(c.Query("search")), pg)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": usersResponse(admins), "pagination": pg.Meta(total)})
}

func (h *SuperAdminHandler) findAccount(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := h.users.FindUser(ctx, id)
	if errors.Is(err, services.ErrUnknownIdentity) {
		return nil, fiber.NewError(fiber.StatusNotFound, "user not found")
	}
	return user, err
}

type createAdminRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
}

// CreateAdmin creates an admin account.
func (h *SuperAdminHandler) CreateAdmin(c *fiber.Ctx) error {
	var req createAdminRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	verr := &models.ValidationError{}
	email := services.NormalizeEmail(req.Email)
	if strings.TrimSpace(req.FirstName) == "" {
		verr.Add("first_name", "first name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		verr.Add("email", "email is invalid")
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		verr.Add("password", err.Error())
	}
	if err := verr.OrNil(); err != nil {
		return err
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}
	admin := models.User{
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		DisplayName:  strings.TrimSpace(req.FirstName + " " + req.LastName),
		Email:        &email,
		Phone:        optionalString(strings.TrimSpace(req.Phone)),
		PasswordHash: passwordHash,
		Role:         models.RoleAdmin,
		IsVerified:   true,
	}
	if err := h.users.Create(c.UserContext(), &admin); err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": userResponse(&admin)})
}

// DeleteAdmin removes an admin account. Its sessions go with it in the
// same transaction; enquiries it placed stay with the owner cleared.
func (h *SuperAdminHandler) DeleteAdmin(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	target, err := h.findAccount(ctx, id)
	if err != nil {
		return err
	}
	if target.Role != models.RoleAdmin {
		return fiber.NewError(fiber.StatusNotFound, "admin not found")
	}

	if err := h.users.Delete(ctx, id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "message": "admin deleted"})
}

type changeRoleRequest struct {
	Role models.Role `json:"role"`
}

// ChangeRole moves an account between the user and admin tiers and signs
// it out so the new role applies to the next login.
func (h *SuperAdminHandler) ChangeRole(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req changeRoleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Role != models.RoleUser && req.Role != models.RoleAdmin {
		verr := &models.ValidationError{}
		verr.Add("role", "must be user or admin")
		return verr
	}

	ctx := c.UserContext()
	target, err := h.findAccount(ctx, id)
	if err != nil {
		return err
	}
	if target.Role == models.RoleSuperAdmin {
		return fiber.NewError(fiber.StatusForbidden, "super-admin role cannot be changed")
	}
	if target.Role == req.Role {
		return c.JSON(fiber.Map{"success": true, "data": userResponse(target)})
	}

	if err := h.users.Updates(ctx, id, map[string]interface{}{"role": req.Role}); err != nil {
		return err
	}
	if err := h.tokens.RevokeAll(ctx, id); err != nil {
		return err
	}
	target.Role = req.Role
	return c.JSON(fiber.Map{"success": true, "data": userResponse(target)})
}
