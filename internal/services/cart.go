package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/example/storefront/internal/models"
)

const (
	MinLineQuantity = 1
	MaxLineQuantity = 10
)

// ProductStore resolves products with their variants and images loaded.
type ProductStore interface {
	// FindProduct returns ErrProductNotFound when id does not resolve.
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	// FindProducts returns the subset of ids that resolve.
	FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error)
}

// CartStore loads and saves a user's cart under an optimistic version.
type CartStore interface {
	LoadCart(ctx context.Context, userID uuid.UUID) ([]models.CartItem, int, error)
	// SaveCart returns ErrCartConflict when version is no longer current.
	SaveCart(ctx context.Context, userID uuid.UUID, version int, lines []models.CartItem) error
}

// CartLine is one summarized cart row.
type CartLine struct {
	ID             uuid.UUID `json:"id"`
	ProductID      uuid.UUID `json:"product_id"`
	Title          string    `json:"title"`
	Image          string    `json:"image,omitempty"`
	VariantID      uuid.UUID `json:"variant_id"`
	Size           string    `json:"size"`
	Quantity       int       `json:"quantity"`
	Stock          int       `json:"stock"`
	Price          float64   `json:"price"`
	EffectivePrice float64   `json:"effective_price"`
	LineTotal      float64   `json:"line_total"`
}

// CartSummary totals a cart. Subtotal uses base prices, Total uses effective prices.
type CartSummary struct {
	Lines     []CartLine `json:"items"`
	ItemCount int        `json:"item_count"`
	Subtotal  float64    `json:"subtotal"`
	Discount  float64    `json:"discount"`
	Total     float64    `json:"total"`
}

// ResolveVariant picks the variant matching size, falling back to the first
// variant when no variant carries that size.
func ResolveVariant(p *models.Product, size string) *models.ProductVariant {
	for i := range p.Variants {
		if p.Variants[i].Size == size {
			return &p.Variants[i]
		}
	}
	return p.FirstVariant()
}

func validQuantity(qty int) bool {
	return qty >= MinLineQuantity && qty <= MaxLineQuantity
}

// AddLine adds qty of product to lines, merging with an existing line for the
// same product and resolved size. lines is never modified; on error the
// caller keeps its original cart.
func AddLine(lines []models.CartItem, p *models.Product, size string, qty int, now time.Time) ([]models.CartItem, error) {
	if !validQuantity(qty) {
		return nil, ErrInvalidQuantity
	}
	if !p.Available {
		return nil, ErrOutOfStock
	}
	variant := ResolveVariant(p, size)
	if variant == nil {
		return nil, ErrOutOfStock
	}
	if variant.Quantity < qty {
		return nil, ErrInsufficientStock
	}

	out := make([]models.CartItem, len(lines))
	copy(out, lines)

	for i := range out {
		if out[i].ProductID != p.ID || out[i].Size != variant.Size {
			continue
		}
		total := out[i].Quantity + qty
		if total > variant.Quantity {
			return nil, ErrInsufficientStock
		}
		out[i].Quantity = total
		out[i].VariantID = variant.ID
		return out, nil
	}

	return append(out, models.CartItem{
		ProductID: p.ID,
		VariantID: variant.ID,
		Size:      variant.Size,
		Quantity:  qty,
		AddedAt:   now,
	}), nil
}

// FindLine locates a line by line id first, then by product id. It returns -1
// when nothing matches.
func FindLine(lines []models.CartItem, ref string) int {
	id, err := uuid.Parse(ref)
	if err != nil {
		return -1
	}
	for i := range lines {
		if lines[i].ID == id {
			return i
		}
	}
	for i := range lines {
		if lines[i].ProductID == id {
			return i
		}
	}
	return -1
}

// UpdateLine re-resolves the variant of lines[idx] from the current product
// state and sets its size and quantity. Moving a line onto a size another
// line of the product already holds folds the two together, checked against
// stock like AddLine.
func UpdateLine(lines []models.CartItem, idx int, p *models.Product, size string, qty int) ([]models.CartItem, error) {
	if idx < 0 || idx >= len(lines) {
		return nil, ErrCartLineNotFound
	}
	if !validQuantity(qty) {
		return nil, ErrInvalidQuantity
	}
	if size == "" {
		size = lines[idx].Size
	}
	variant := ResolveVariant(p, size)
	if variant == nil {
		return nil, ErrOutOfStock
	}
	if variant.Quantity < qty {
		return nil, ErrInsufficientStock
	}

	for j := range lines {
		if j == idx || lines[j].ProductID != lines[idx].ProductID || lines[j].Size != variant.Size {
			continue
		}
		total := lines[j].Quantity + qty
		if total > variant.Quantity {
			return nil, ErrInsufficientStock
		}
		out := make([]models.CartItem, 0, len(lines)-1)
		for i := range lines {
			if i == idx {
				continue
			}
			line := lines[i]
			if i == j {
				line.Quantity = total
				line.VariantID = variant.ID
			}
			out = append(out, line)
		}
		return out, nil
	}

	out := make([]models.CartItem, len(lines))
	copy(out, lines)
	out[idx].Quantity = qty
	out[idx].Size = variant.Size
	out[idx].VariantID = variant.ID
	return out, nil
}

// RemoveLine drops exactly one line matched by FindLine.
func RemoveLine(lines []models.CartItem, ref string) ([]models.CartItem, error) {
	idx := FindLine(lines, ref)
	if idx < 0 {
		return nil, ErrCartLineNotFound
	}
	out := make([]models.CartItem, 0, len(lines)-1)
	out = append(out, lines[:idx]...)
	return append(out, lines[idx+1:]...), nil
}

// Summarize totals lines against products. Lines whose product is missing
// are left out of both the summary and kept; dropped counts them.
func Summarize(lines []models.CartItem, products map[uuid.UUID]*models.Product) (CartSummary, []models.CartItem, int) {
	summary := CartSummary{Lines: []CartLine{}}
	kept := make([]models.CartItem, 0, len(lines))
	dropped := 0

	for _, line := range lines {
		p, ok := products[line.ProductID]
		if !ok {
			dropped++
			continue
		}
		kept = append(kept, line)

		variant := ResolveVariant(p, line.Size)
		if variant == nil {
			continue
		}

		view := CartLine{
			ID:             line.ID,
			ProductID:      p.ID,
			Title:          p.Title,
			VariantID:      variant.ID,
			Size:           variant.Size,
			Quantity:       line.Quantity,
			Stock:          variant.Quantity,
			Price:          variant.Price,
			EffectivePrice: variant.EffectivePrice(),
			LineTotal:      variant.EffectivePrice() * float64(line.Quantity),
		}
		if len(p.Images) > 0 {
			view.Image = p.Images[0].Src()
		}

		summary.Lines = append(summary.Lines, view)
		summary.ItemCount += line.Quantity
		summary.Subtotal += variant.Price * float64(line.Quantity)
		summary.Total += view.LineTotal
	}
	summary.Discount = summary.Subtotal - summary.Total

	return summary, kept, dropped
}

// CartService applies cart operations for a user and persists the result.
type CartService struct {
	carts    CartStore
	products ProductStore
	now      func() time.Time
}

// NewCartService constructs a CartService.
func NewCartService(carts CartStore, products ProductStore) *CartService {
	return &CartService{carts: carts, products: products, now: time.Now}
}

// Add puts qty of the product's size into the user's cart.
func (s *CartService) Add(ctx context.Context, userID, productID uuid.UUID, size string, qty int) error {
	lines, version, err := s.carts.LoadCart(ctx, userID)
	if err != nil {
		return err
	}
	product, err := s.products.FindProduct(ctx, productID)
	if err != nil {
		return err
	}

	updated, err := AddLine(lines, product, size, qty, s.now())
	if err != nil {
		return err
	}
	for i := range updated {
		updated[i].UserID = userID
	}
	return s.carts.SaveCart(ctx, userID, version, updated)
}

// Update changes size and quantity of the line referenced by ref.
func (s *CartService) Update(ctx context.Context, userID uuid.UUID, ref, size string, qty int) error {
	lines, version, err := s.carts.LoadCart(ctx, userID)
	if err != nil {
		return err
	}
	idx := FindLine(lines, ref)
	if idx < 0 {
		return ErrCartLineNotFound
	}
	product, err := s.products.FindProduct(ctx, lines[idx].ProductID)
	if err != nil {
		return err
	}

	updated, err := UpdateLine(lines, idx, product, size, qty)
	if err != nil {
		return err
	}
	return s.carts.SaveCart(ctx, userID, version, updated)
}

// Remove deletes the line referenced by ref.
func (s *CartService) Remove(ctx context.Context, userID uuid.UUID, ref string) error {
	lines, version, err := s.carts.LoadCart(ctx, userID)
	if err != nil {
		return err
	}
	updated, err := RemoveLine(lines, ref)
	if err != nil {
		return err
	}
	return s.carts.SaveCart(ctx, userID, version, updated)
}

// Clear empties the cart.
func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) error {
	_, version, err := s.carts.LoadCart(ctx, userID)
	if err != nil {
		return err
	}
	return s.carts.SaveCart(ctx, userID, version, nil)
}

// Summary totals the cart. Lines pointing at deleted products are removed
// from the stored cart as a side effect.
func (s *CartService) Summary(ctx context.Context, userID uuid.UUID) (CartSummary, error) {
	lines, version, err := s.carts.LoadCart(ctx, userID)
	if err != nil {
		return CartSummary{}, err
	}

	products, err := s.products.FindProducts(ctx, cartProductIDs(lines))
	if err != nil {
		return CartSummary{}, err
	}

	summary, kept, dropped := Summarize(lines, products)
	if dropped > 0 {
		if err := s.carts.SaveCart(ctx, userID, version, kept); err != nil {
			if !errors.Is(err, ErrCartConflict) {
				return CartSummary{}, err
			}
			log.Printf("[Cart] prune of %d stale lines for user %s lost a race, will retry on next read", dropped, userID)
		}
	}
	return summary, nil
}

func cartProductIDs(lines []models.CartItem) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	return ids
}
