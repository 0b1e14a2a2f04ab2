package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/repository"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/utils"
)

// AdminHandler manages admin-only endpoints.
type AdminHandler struct {
	users     *repository.UserRepository
	products  *repository.ProductRepository
	enquiries *repository.EnquiryRepository
	service   *services.EnquiryService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(users *repository.UserRepository, products *repository.ProductRepository, enquiries *repository.EnquiryRepository, service *services.EnquiryService) *AdminHandler {
	return &AdminHandler{users: users, products: products, enquiries: enquiries, service: service}
}

// Dashboard returns customers, products and enquiries in one response. Each
// list pages independently through usersPage, productsPage and enquiriesPage.
func (h *AdminHandler) Dashboard(c *fiber.Ctx) error {
	ctx := c.UserContext()
	usersPg := utils.ParsePaginationWithPrefix(c, "users")
	productsPg := utils.ParsePaginationWithPrefix(c, "products")
	enquiriesPg := utils.ParsePaginationWithPrefix(c, "enquiries")

	users, totalUsers, err := h.users.List(ctx, models.RoleUser, "", usersPg)
	if err != nil {
		return err
	}

	products, totalProducts, err := productsPage(ctx, h.products, productsPg)
	if err != nil {
		return err
	}
	_, availableProducts, err := h.products.Count(ctx)
	if err != nil {
		return err
	}

	enquiries, totalEnquiries, err := enquiriesPage(ctx, h.service, enquiriesPg)
	if err != nil {
		return err
	}
	enquiriesByStatus, err := h.enquiries.CountByStatus(ctx)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"users": fiber.Map{
				"items":      usersResponse(users),
				"pagination": usersPg.Meta(totalUsers),
			},
			"products":  products,
			"enquiries": enquiries,
			"stats": fiber.Map{
				"total_users":         totalUsers,
				"total_products":      totalProducts,
				"available_products":  availableProducts,
				"total_enquiries":     totalEnquiries,
				"enquiries_by_status": enquiriesByStatus,
			},
		},
	})
}

type productPager interface {
	List(ctx context.Context, pg utils.Pagination) ([]models.Product, int64, error)
}

// productsPage is one dashboard page of products in client shape.
func productsPage(ctx context.Context, products productPager, pg utils.Pagination) (fiber.Map, int64, error) {
	items, total, err := products.List(ctx, pg)
	if err != nil {
		return nil, 0, err
	}
	views := make([]services.ProductView, 0, len(items))
	for i := range items {
		views = append(views, services.NewProductView(&items[i]))
	}
	return fiber.Map{"items": views, "pagination": pg.Meta(total)}, total, nil
}

// enquiriesPage is one dashboard page of enquiries, pruned of deleted products.
func enquiriesPage(ctx context.Context, enquiries *services.EnquiryService, pg utils.Pagination) (fiber.Map, int64, error) {
	items, total, err := enquiries.List(ctx, services.EnquiryFilter{Limit: pg.Limit, Offset: pg.Offset})
	if err != nil {
		return nil, 0, err
	}
	return fiber.Map{"items": items, "pagination": pg.Meta(total)}, total, nil
}

// ListAllUsers returns customer accounts with pagination and search.
func (h *AdminHandler) ListAllUsers(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	users, total, err := h.users.List(c.UserContext(), models.RoleUser, strings.TrimSpace(c.Query("search")), pg)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"data":       usersResponse(users),
		"pagination": pg.Meta(total),
	})
}
