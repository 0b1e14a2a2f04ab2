package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/utils"
)

// SortKey selects the catalog ordering.
type SortKey string

const (
	SortCreatedAt SortKey = "createdAt"
	// SortFirstVariantPrice orders by the first variant's effective price.
	SortFirstVariantPrice SortKey = "variants.0.price"
	// SortRating orders by the first variant's quality read as an integer.
	SortRating SortKey = "rating"
)

// CatalogQuery is the parsed filter/sort/page contract of the catalog listing.
type CatalogQuery struct {
	Search         string
	Category       string
	SubCategory    string
	SubSubCategory string
	// MinPrice and MaxPrice match against any variant's base price.
	MinPrice  *float64
	MaxPrice  *float64
	SortBy    SortKey
	Ascending bool
	Page      utils.Pagination
}

// ParseCatalogQuery reads the catalog query parameters through get.
// Unparseable numbers are ignored and unknown sort keys fall back to creation time.
func ParseCatalogQuery(get func(key string) string) CatalogQuery {
	q := CatalogQuery{
		Search:         strings.TrimSpace(get("q")),
		Category:       strings.TrimSpace(get("category")),
		SubCategory:    strings.TrimSpace(get("subCategory")),
		SubSubCategory: strings.TrimSpace(get("subSubCategory")),
		MinPrice:       parseFloatPtr(get("minPrice")),
		MaxPrice:       parseFloatPtr(get("maxPrice")),
		SortBy:         SortCreatedAt,
		Ascending:      strings.EqualFold(get("sortOrder"), "asc"),
	}

	switch SortKey(get("sortBy")) {
	case SortFirstVariantPrice:
		q.SortBy = SortFirstVariantPrice
	case SortRating:
		q.SortBy = SortRating
	}

	page, err := strconv.Atoi(get("page"))
	if err != nil {
		page = 1
	}
	q.Page = utils.NewPagination(page, utils.DefaultPageSize)
	return q
}

func parseFloatPtr(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

// MaxRatingDigits bounds the leading integer of a quality label so it fits
// a Postgres int. Longer runs rate as 0.
const MaxRatingDigits = 9

// QualityRating reads the leading integer of a quality label, 0 when there is none.
func QualityRating(quality string) int {
	s := strings.TrimSpace(quality)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits || end-digits > MaxRatingDigits {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// ProductView is the client shape of a product. Blob images become data URIs.
type ProductView struct {
	ID             uuid.UUID               `json:"id"`
	Title          string                  `json:"title"`
	Category       string                  `json:"category"`
	SubCategory    string                  `json:"sub_category"`
	SubSubCategory string                  `json:"sub_sub_category"`
	Description    string                  `json:"description"`
	Available      bool                    `json:"available"`
	Images         []string                `json:"images"`
	Variants       []models.ProductVariant `json:"variants"`
	EffectivePrice float64                 `json:"effective_price"`
	Rating         int                     `json:"rating"`
	CreatedAt      time.Time               `json:"created_at"`
}

// NewProductView projects p for API responses.
func NewProductView(p *models.Product) ProductView {
	view := ProductView{
		ID:             p.ID,
		Title:          p.Title,
		Category:       p.Category,
		SubCategory:    p.SubCategory,
		SubSubCategory: p.SubSubCategory,
		Description:    p.Description,
		Available:      p.Available,
		Images:         make([]string, 0, len(p.Images)),
		Variants:       p.Variants,
		CreatedAt:      p.CreatedAt,
	}
	for _, img := range p.Images {
		view.Images = append(view.Images, img.Src())
	}
	if first := p.FirstVariant(); first != nil {
		view.EffectivePrice = first.EffectivePrice()
		view.Rating = QualityRating(first.Quality)
	}
	return view
}

// CatalogSearcher runs a CatalogQuery against storage.
type CatalogSearcher interface {
	SearchProducts(ctx context.Context, q CatalogQuery) ([]models.Product, int64, error)
}

// CatalogPage is one page of catalog results.
type CatalogPage struct {
	Products   []ProductView  `json:"products"`
	Pagination utils.PageMeta `json:"pagination"`
}

// CatalogService answers catalog listings.
type CatalogService struct {
	searcher CatalogSearcher
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(searcher CatalogSearcher) *CatalogService {
	return &CatalogService{searcher: searcher}
}

// Search returns the requested page and its metadata.
func (s *CatalogService) Search(ctx context.Context, q CatalogQuery) (CatalogPage, error) {
	products, total, err := s.searcher.SearchProducts(ctx, q)
	if err != nil {
		return CatalogPage{}, err
	}
	page := CatalogPage{
		Products:   make([]ProductView, 0, len(products)),
		Pagination: q.Page.Meta(total),
	}
	for i := range products {
		page.Products = append(page.Products, NewProductView(&products[i]))
	}
	return page, nil
}
