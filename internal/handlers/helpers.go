package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/models"
)

func currentUser(c *fiber.Ctx) (*models.User, error) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	return user, nil
}

func parseID(c *fiber.Ctx, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(param))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+param)
	}
	return id, nil
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return nil
}

func userResponse(user *models.User) fiber.Map {
	return fiber.Map{
		"id":            user.ID,
		"first_name":    user.FirstName,
		"last_name":     user.LastName,
		"display_name":  user.DisplayName,
		"email":         user.EmailValue(),
		"phone":         user.PhoneValue(),
		"role":          user.Role,
		"is_verified":   user.IsVerified,
		"last_login_at": user.LastLoginAt,
		"created_at":    user.CreatedAt,
	}
}

func usersResponse(users []models.User) []fiber.Map {
	out := make([]fiber.Map, 0, len(users))
	for i := range users {
		out = append(out, userResponse(&users[i]))
	}
	return out
}
