package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/storefront/internal/models"
)

// memStore is an in-memory stand-in for the gorm repositories.
type memStore struct {
	mu sync.Mutex

	users    map[uuid.UUID]*models.User
	tokens   map[uuid.UUID][]models.UserToken
	carts    map[uuid.UUID][]models.CartItem
	versions map[uuid.UUID]int
	products map[uuid.UUID]*models.Product

	wishlists map[uuid.UUID]*models.Wishlist
	enquiries map[uuid.UUID]*models.Enquiry

	emailOTPs []*models.EmailOTP
	phoneOTPs []*models.PhoneVerification

	// saveCartHook runs before SaveCart checks the version.
	saveCartHook func(userID uuid.UUID)
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[uuid.UUID]*models.User{},
		tokens:    map[uuid.UUID][]models.UserToken{},
		carts:     map[uuid.UUID][]models.CartItem{},
		versions:  map[uuid.UUID]int{},
		products:  map[uuid.UUID]*models.Product{},
		wishlists: map[uuid.UUID]*models.Wishlist{},
		enquiries: map[uuid.UUID]*models.Enquiry{},
	}
}

func (m *memStore) addUser(role models.Role) *models.User {
	email := uuid.NewString() + "@example.com"
	u := &models.User{FirstName: "Test", Email: &email, Role: role}
	u.ID = uuid.New()
	m.users[u.ID] = u
	return u
}

func (m *memStore) addProduct(variants ...models.ProductVariant) *models.Product {
	p := &models.Product{Title: "Silk scarf", Available: true}
	p.ID = uuid.New()
	for i := range variants {
		variants[i].ID = uuid.New()
		variants[i].ProductID = p.ID
		variants[i].Position = i
	}
	p.Variants = variants
	p.Available = p.HasStock()
	m.products[p.ID] = p
	return p
}

// TokenStore

func (m *memStore) FindUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUnknownIdentity
	}
	return u, nil
}

func (m *memStore) AddToken(_ context.Context, token models.UserToken, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append(m.tokens[token.UserID], token)
	sort.SliceStable(list, func(i, j int) bool { return list[i].IssuedAt.After(list[j].IssuedAt) })
	if len(list) > keep {
		list = list[:keep]
	}
	m.tokens[token.UserID] = list
	return nil
}

func (m *memStore) HasToken(_ context.Context, userID uuid.UUID, digest string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens[userID] {
		if t.Digest == digest {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) RemoveToken(_ context.Context, userID uuid.UUID, digest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.tokens[userID][:0]
	for _, t := range m.tokens[userID] {
		if t.Digest != digest {
			kept = append(kept, t)
		}
	}
	m.tokens[userID] = kept
	return nil
}

func (m *memStore) ClearTokens(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, userID)
	return nil
}

func (m *memStore) TouchLastLogin(_ context.Context, userID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

// CartStore

func (m *memStore) LoadCart(_ context.Context, userID uuid.UUID) ([]models.CartItem, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := make([]models.CartItem, len(m.carts[userID]))
	copy(lines, m.carts[userID])
	return lines, m.versions[userID], nil
}

func (m *memStore) SaveCart(_ context.Context, userID uuid.UUID, version int, lines []models.CartItem) error {
	if m.saveCartHook != nil {
		m.saveCartHook(userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.versions[userID] != version {
		return ErrCartConflict
	}
	m.versions[userID]++
	stored := make([]models.CartItem, len(lines))
	for i, line := range lines {
		line.UserID = userID
		if line.ID == uuid.Nil {
			line.ID = uuid.New()
		}
		stored[i] = line
	}
	m.carts[userID] = stored
	return nil
}

// ProductStore and ProductIndex

func (m *memStore) FindProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return p, nil
}

func (m *memStore) FindProducts(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := map[uuid.UUID]*models.Product{}
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			found[id] = p
		}
	}
	return found, nil
}

func (m *memStore) ExistingProductIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	live := map[uuid.UUID]bool{}
	for _, id := range ids {
		if _, ok := m.products[id]; ok {
			live[id] = true
		}
	}
	return live, nil
}

// WishlistStore

func (m *memStore) GetOrCreateWishlist(_ context.Context, userID uuid.UUID) (*models.Wishlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wishlists[userID]
	if !ok {
		w = &models.Wishlist{UserID: userID}
		w.ID = uuid.New()
		m.wishlists[userID] = w
	}
	copied := *w
	copied.Items = append([]models.WishlistItem(nil), w.Items...)
	return &copied, nil
}

func (m *memStore) wishlistByID(id uuid.UUID) *models.Wishlist {
	for _, w := range m.wishlists {
		if w.ID == id {
			return w
		}
	}
	return nil
}

func (m *memStore) AddWishlistItem(_ context.Context, wishlistID, productID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.wishlistByID(wishlistID)
	for _, item := range w.Items {
		if item.ProductID == productID {
			return nil
		}
	}
	item := models.WishlistItem{WishlistID: wishlistID, ProductID: productID, AddedAt: at}
	item.ID = uuid.New()
	w.Items = append([]models.WishlistItem{item}, w.Items...)
	return nil
}

func (m *memStore) RemoveWishlistItems(_ context.Context, wishlistID uuid.UUID, productIDs []uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := map[uuid.UUID]bool{}
	for _, id := range productIDs {
		drop[id] = true
	}
	w := m.wishlistByID(wishlistID)
	var kept []models.WishlistItem
	var n int64
	for _, item := range w.Items {
		if drop[item.ProductID] {
			n++
			continue
		}
		kept = append(kept, item)
	}
	w.Items = kept
	return n, nil
}

func (m *memStore) ClearWishlist(_ context.Context, wishlistID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wishlistByID(wishlistID).Items = nil
	return nil
}

// EnquiryStore

func (m *memStore) CreateEnquiry(_ context.Context, enquiry *models.Enquiry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	enquiry.ID = uuid.New()
	enquiry.CreatedAt = time.Now()
	for i := range enquiry.Items {
		enquiry.Items[i].ID = uuid.New()
		enquiry.Items[i].EnquiryID = enquiry.ID
	}
	stored := *enquiry
	stored.Items = append([]models.EnquiryItem(nil), enquiry.Items...)
	m.enquiries[enquiry.ID] = &stored
	return nil
}

func (m *memStore) FindEnquiry(_ context.Context, id uuid.UUID) (*models.Enquiry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enquiries[id]
	if !ok {
		return nil, ErrEnquiryNotFound
	}
	copied := *e
	copied.Items = append([]models.EnquiryItem(nil), e.Items...)
	return &copied, nil
}

func (m *memStore) ListEnquiries(_ context.Context, filter EnquiryFilter) ([]models.Enquiry, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Enquiry
	for _, e := range m.enquiries {
		if filter.UserID != nil && e.UserID != *filter.UserID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		copied := *e
		copied.Items = append([]models.EnquiryItem(nil), e.Items...)
		out = append(out, copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

func (m *memStore) RemoveEnquiryItems(_ context.Context, itemIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := map[uuid.UUID]bool{}
	for _, id := range itemIDs {
		drop[id] = true
	}
	for _, e := range m.enquiries {
		var kept []models.EnquiryItem
		for _, item := range e.Items {
			if !drop[item.ID] {
				kept = append(kept, item)
			}
		}
		e.Items = kept
	}
	return nil
}

func (m *memStore) UpdateEnquiry(_ context.Context, id uuid.UUID, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enquiries[id]
	if !ok {
		return ErrEnquiryNotFound
	}
	if status, ok := updates["status"].(models.EnquiryStatus); ok {
		e.Status = status
	}
	if notes, ok := updates["notes"].(string); ok {
		e.Notes = notes
	}
	return nil
}

// OTPStore

func (m *memStore) SaveEmailOTP(_ context.Context, otp *models.EmailOTP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	otp.ID = uuid.New()
	m.emailOTPs = append(m.emailOTPs, otp)
	return nil
}

func (m *memStore) LatestEmailOTP(_ context.Context, email, purpose string) (*models.EmailOTP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.emailOTPs) - 1; i >= 0; i-- {
		if o := m.emailOTPs[i]; o.Email == email && o.Purpose == purpose {
			copied := *o
			return &copied, nil
		}
	}
	return nil, ErrInvalidCode
}

func (m *memStore) SavePhoneVerification(_ context.Context, v *models.PhoneVerification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v.ID = uuid.New()
	m.phoneOTPs = append(m.phoneOTPs, v)
	return nil
}

func (m *memStore) LatestPhoneVerification(_ context.Context, phone string) (*models.PhoneVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.phoneOTPs) - 1; i >= 0; i-- {
		if v := m.phoneOTPs[i]; v.Phone == phone {
			copied := *v
			return &copied, nil
		}
	}
	return nil, ErrInvalidCode
}

func (m *memStore) MarkUsed(_ context.Context, model any, id uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch model.(type) {
	case *models.EmailOTP:
		for _, o := range m.emailOTPs {
			if o.ID == id && o.UsedAt == nil {
				o.UsedAt = &at
				return true, nil
			}
		}
	case *models.PhoneVerification:
		for _, v := range m.phoneOTPs {
			if v.ID == id && v.UsedAt == nil {
				v.UsedAt = &at
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *memStore) ClaimAttempt(_ context.Context, model any, id uuid.UUID, limit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch model.(type) {
	case *models.EmailOTP:
		for _, o := range m.emailOTPs {
			if o.ID == id && o.UsedAt == nil && o.Attempts < limit {
				o.Attempts++
				return true, nil
			}
		}
	case *models.PhoneVerification:
		for _, v := range m.phoneOTPs {
			if v.ID == id && v.UsedAt == nil && v.Attempts < limit {
				v.Attempts++
				return true, nil
			}
		}
	}
	return false, nil
}

// fakeMailer records sent messages.
type fakeMailer struct {
	mu   sync.Mutex
	sent []EmailMessage
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg EmailMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

// fakePhones accepts a single fixed code.
type fakePhones struct {
	enabled bool
	code    string
	sends   int
}

func (f *fakePhones) Enabled() bool { return f.enabled }

func (f *fakePhones) SendCode(_ context.Context, phone string) (string, error) {
	f.sends++
	return "session-" + phone, nil
}

func (f *fakePhones) CheckCode(_ context.Context, _ string, code string) (bool, error) {
	return code == f.code, nil
}

// recordingNotifier captures EnquiryCreated calls.
type recordingNotifier struct {
	calls []*models.Enquiry
	err   error
}

func (n *recordingNotifier) EnquiryCreated(_ context.Context, _ *models.User, enquiry *models.Enquiry, _ map[uuid.UUID]*models.Product) error {
	n.calls = append(n.calls, enquiry)
	return n.err
}
