package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/example/storefront/internal/models"
)

// EnquiryFilter narrows ListEnquiries.
type EnquiryFilter struct {
	UserID *uuid.UUID
	Status models.EnquiryStatus
	Limit  int
	Offset int
}

// EnquiryStore persists enquiries and their items.
type EnquiryStore interface {
	CreateEnquiry(ctx context.Context, enquiry *models.Enquiry) error
	// FindEnquiry returns ErrEnquiryNotFound when id does not resolve.
	FindEnquiry(ctx context.Context, id uuid.UUID) (*models.Enquiry, error)
	ListEnquiries(ctx context.Context, filter EnquiryFilter) ([]models.Enquiry, int64, error)
	RemoveEnquiryItems(ctx context.Context, itemIDs []uuid.UUID) error
	UpdateEnquiry(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
}

// EnquiryNotifier is told about new enquiries. Failures are logged only.
type EnquiryNotifier interface {
	EnquiryCreated(ctx context.Context, user *models.User, enquiry *models.Enquiry, products map[uuid.UUID]*models.Product) error
}

// Contact is the reachable address left on an enquiry.
type Contact struct {
	Email string
	Phone string
}

// EnquiryService raises and manages enquiries. Like wishlists, reads drop
// items whose product was deleted and persist that removal.
type EnquiryService struct {
	store    EnquiryStore
	index    ProductIndex
	products ProductStore
	carts    *CartService
	cartData CartStore
	notifier EnquiryNotifier
}

// NewEnquiryService constructs an EnquiryService. notifier may be nil.
func NewEnquiryService(store EnquiryStore, index ProductIndex, products ProductStore, carts CartStore, notifier EnquiryNotifier) *EnquiryService {
	return &EnquiryService{
		store:    store,
		index:    index,
		products: products,
		carts:    NewCartService(carts, products),
		cartData: carts,
		notifier: notifier,
	}
}

func resolveContact(user *models.User, contact Contact) (Contact, error) {
	contact.Email = strings.TrimSpace(contact.Email)
	contact.Phone = strings.TrimSpace(contact.Phone)
	if contact.Email == "" {
		contact.Email = user.EmailValue()
	}
	if contact.Phone == "" {
		contact.Phone = user.PhoneValue()
	}
	if contact.Email == "" && contact.Phone == "" {
		verr := &models.ValidationError{}
		verr.Add("contact", "an email or phone is required")
		return contact, verr
	}
	return contact, nil
}

// CreateFromCart turns every resolvable cart line into an enquiry item and
// empties the cart.
func (s *EnquiryService) CreateFromCart(ctx context.Context, user *models.User, contact Contact, notes string) (*models.Enquiry, error) {
	contact, err := resolveContact(user, contact)
	if err != nil {
		return nil, err
	}

	lines, _, err := s.cartData.LoadCart(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	products, err := s.products.FindProducts(ctx, cartProductIDs(lines))
	if err != nil {
		return nil, err
	}

	quantities := map[uuid.UUID]int{}
	var order []uuid.UUID
	for _, line := range lines {
		if _, ok := products[line.ProductID]; !ok {
			continue
		}
		if _, seen := quantities[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		quantities[line.ProductID] += line.Quantity
	}
	if len(order) == 0 {
		return nil, ErrEmptyCart
	}

	enquiry := &models.Enquiry{
		UserID:       user.ID,
		ContactEmail: contact.Email,
		ContactPhone: contact.Phone,
		Status:       models.EnquiryPending,
		Notes:        notes,
	}
	for _, id := range order {
		enquiry.Items = append(enquiry.Items, models.EnquiryItem{ProductID: id, Quantity: quantities[id]})
	}

	if err := s.store.CreateEnquiry(ctx, enquiry); err != nil {
		return nil, err
	}
	if err := s.carts.Clear(ctx, user.ID); err != nil {
		log.Printf("[Enquiry] clearing cart of user %s after enquiry %s failed: %v", user.ID, enquiry.ID, err)
	}

	s.notify(ctx, user, enquiry, products)
	return enquiry, nil
}

// CreateForProduct raises an enquiry for a single product.
func (s *EnquiryService) CreateForProduct(ctx context.Context, user *models.User, productID uuid.UUID, qty int, contact Contact, notes string) (*models.Enquiry, error) {
	if qty < 1 {
		verr := &models.ValidationError{}
		verr.Add("quantity", "must be at least 1")
		return nil, verr
	}
	contact, err := resolveContact(user, contact)
	if err != nil {
		return nil, err
	}
	product, err := s.products.FindProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	enquiry := &models.Enquiry{
		UserID:       user.ID,
		ContactEmail: contact.Email,
		ContactPhone: contact.Phone,
		Status:       models.EnquiryPending,
		Notes:        notes,
		Items:        []models.EnquiryItem{{ProductID: product.ID, Quantity: qty}},
	}
	if err := s.store.CreateEnquiry(ctx, enquiry); err != nil {
		return nil, err
	}

	s.notify(ctx, user, enquiry, map[uuid.UUID]*models.Product{product.ID: product})
	return enquiry, nil
}

func (s *EnquiryService) notify(ctx context.Context, user *models.User, enquiry *models.Enquiry, products map[uuid.UUID]*models.Product) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.EnquiryCreated(ctx, user, enquiry, products); err != nil {
		log.Printf("[Enquiry] notification for %s failed: %v", enquiry.ID, err)
	}
}

// List returns a page of enquiries matching filter with dangling items pruned.
func (s *EnquiryService) List(ctx context.Context, filter EnquiryFilter) ([]models.Enquiry, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, ErrInvalidStatus
	}
	enquiries, total, err := s.store.ListEnquiries(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	if err := s.prune(ctx, enquiries); err != nil {
		return nil, 0, err
	}
	return enquiries, total, nil
}

// Get loads one enquiry. Non-staff callers only see their own.
func (s *EnquiryService) Get(ctx context.Context, id uuid.UUID, requester *models.User) (*models.Enquiry, error) {
	enquiry, err := s.store.FindEnquiry(ctx, id)
	if err != nil {
		return nil, err
	}
	if requester.Role == models.RoleUser && enquiry.UserID != requester.ID {
		return nil, ErrEnquiryNotFound
	}
	list := []models.Enquiry{*enquiry}
	if err := s.prune(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// UpdateStatus sets status and/or notes. Staff only; the caller enforces the role.
func (s *EnquiryService) UpdateStatus(ctx context.Context, id uuid.UUID, status models.EnquiryStatus, notes *string) (*models.Enquiry, error) {
	updates := map[string]interface{}{}
	if status != "" {
		if !status.Valid() {
			return nil, ErrInvalidStatus
		}
		updates["status"] = status
	}
	if notes != nil {
		updates["notes"] = *notes
	}
	if len(updates) == 0 {
		verr := &models.ValidationError{}
		verr.Add("status", "status or notes is required")
		return nil, verr
	}

	if _, err := s.store.FindEnquiry(ctx, id); err != nil {
		return nil, err
	}
	if err := s.store.UpdateEnquiry(ctx, id, updates); err != nil {
		return nil, err
	}
	enquiry, err := s.store.FindEnquiry(ctx, id)
	if err != nil {
		return nil, err
	}
	list := []models.Enquiry{*enquiry}
	if err := s.prune(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (s *EnquiryService) prune(ctx context.Context, enquiries []models.Enquiry) error {
	var ids []uuid.UUID
	for _, e := range enquiries {
		for _, item := range e.Items {
			ids = append(ids, item.ProductID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	live, err := s.index.ExistingProductIDs(ctx, ids)
	if err != nil {
		return err
	}

	var stale []uuid.UUID
	for i := range enquiries {
		kept, removed := PruneDangling(enquiries[i].Items, func(item models.EnquiryItem) uuid.UUID { return item.ProductID }, live)
		enquiries[i].Items = kept
		for _, item := range removed {
			stale = append(stale, item.ID)
		}
	}
	if len(stale) > 0 {
		if err := s.store.RemoveEnquiryItems(ctx, stale); err != nil {
			return fmt.Errorf("prune enquiry items: %w", err)
		}
	}
	return nil
}
