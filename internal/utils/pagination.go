package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// DefaultPageSize is the fixed catalog page size.
const DefaultPageSize = 20

// Pagination holds pagination parameters.
type Pagination struct {
	Page   int
	Limit  int
	Offset int
}

// PageMeta describes where a page sits within the full result.
type PageMeta struct {
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	TotalItems  int64 `json:"total_items"`
	PerPage     int   `json:"per_page"`
	HasNextPage bool  `json:"has_next_page"`
	HasPrevPage bool  `json:"has_prev_page"`
}

// NewPagination clamps page and limit to sane values.
func NewPagination(page, limit int) Pagination {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if page <= 0 {
		page = 1
	}
	return Pagination{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// ParsePagination reads the page query param; the page size is fixed.
func ParsePagination(c *fiber.Ctx) Pagination {
	return NewPagination(parseInt(c.Query("page", "1"), 1), DefaultPageSize)
}

// ParsePaginationWithPrefix reads "<prefix>Page" so several lists can share one request.
func ParsePaginationWithPrefix(c *fiber.Ctx, prefix string) Pagination {
	return NewPagination(parseInt(c.Query(prefix+"Page", "1"), 1), DefaultPageSize)
}

// Meta computes page metadata from a total count.
func (p Pagination) Meta(total int64) PageMeta {
	pages := int((total + int64(p.Limit) - 1) / int64(p.Limit))
	return PageMeta{
		CurrentPage: p.Page,
		TotalPages:  pages,
		TotalItems:  total,
		PerPage:     p.Limit,
		HasNextPage: p.Page < pages,
		HasPrevPage: p.Page > 1,
	}
}

func parseInt(value string, fallback int) int {
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	return fallback
}
