package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/models"
)

func newEnquiryFixture() (*memStore, *EnquiryService, *recordingNotifier) {
	store := newMemStore()
	notifier := &recordingNotifier{}
	return store, NewEnquiryService(store, store, store, store, notifier), notifier
}

func TestEnquiryService_CreateFromCart(t *testing.T) {
	ctx := context.Background()
	store, svc, notifier := newEnquiryFixture()
	user := store.addUser(models.RoleUser)
	a := store.addProduct(variant("S", 10, 0, 5), variant("M", 10, 0, 5))
	gone := store.addProduct(variant("S", 10, 0, 5))
	carts := NewCartService(store, store)

	require.NoError(t, carts.Add(ctx, user.ID, a.ID, "S", 1))
	require.NoError(t, carts.Add(ctx, user.ID, a.ID, "M", 2))
	require.NoError(t, carts.Add(ctx, user.ID, gone.ID, "S", 1))
	delete(store.products, gone.ID)

	enquiry, err := svc.CreateFromCart(ctx, user, Contact{}, "call after 5pm")
	require.NoError(t, err)
	assert.Equal(t, models.EnquiryPending, enquiry.Status)
	assert.Equal(t, user.EmailValue(), enquiry.ContactEmail)
	require.Len(t, enquiry.Items, 1)
	assert.Equal(t, a.ID, enquiry.Items[0].ProductID)
	assert.Equal(t, 3, enquiry.Items[0].Quantity, "sizes of one product are folded together")

	lines, _, _ := store.LoadCart(ctx, user.ID)
	assert.Empty(t, lines)
	assert.Len(t, notifier.calls, 1)
}

func TestEnquiryService_CreateFromEmptyCart(t *testing.T) {
	store, svc, _ := newEnquiryFixture()
	user := store.addUser(models.RoleUser)

	_, err := svc.CreateFromCart(context.Background(), user, Contact{}, "")
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestEnquiryService_CreateForProductNeedsContact(t *testing.T) {
	ctx := context.Background()
	store, svc, _ := newEnquiryFixture()
	user := store.addUser(models.RoleUser)
	user.Email = nil
	p := store.addProduct(variant("S", 10, 0, 5))

	_, err := svc.CreateForProduct(ctx, user, p.ID, 1, Contact{}, "")
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "contact")

	enquiry, err := svc.CreateForProduct(ctx, user, p.ID, 2, Contact{Phone: " +998901234567 "}, "")
	require.NoError(t, err)
	assert.Equal(t, "+998901234567", enquiry.ContactPhone)

	_, err = svc.CreateForProduct(ctx, user, p.ID, 0, Contact{Phone: "1"}, "")
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "quantity")
}

func TestEnquiryService_NotifierFailureDoesNotFailCreate(t *testing.T) {
	ctx := context.Background()
	store, svc, notifier := newEnquiryFixture()
	notifier.err = errors.New("telegram down")
	user := store.addUser(models.RoleUser)
	p := store.addProduct(variant("S", 10, 0, 5))

	_, err := svc.CreateForProduct(ctx, user, p.ID, 1, Contact{}, "")
	assert.NoError(t, err)
}

func TestEnquiryService_GetChecksOwnership(t *testing.T) {
	ctx := context.Background()
	store, svc, _ := newEnquiryFixture()
	owner := store.addUser(models.RoleUser)
	stranger := store.addUser(models.RoleUser)
	admin := store.addUser(models.RoleAdmin)
	p := store.addProduct(variant("S", 10, 0, 5))

	enquiry, err := svc.CreateForProduct(ctx, owner, p.ID, 1, Contact{}, "")
	require.NoError(t, err)

	_, err = svc.Get(ctx, enquiry.ID, owner)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, enquiry.ID, admin)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, enquiry.ID, stranger)
	assert.ErrorIs(t, err, ErrEnquiryNotFound)
}

func TestEnquiryService_ListPrunesDeletedProducts(t *testing.T) {
	ctx := context.Background()
	store, svc, _ := newEnquiryFixture()
	user := store.addUser(models.RoleUser)
	p := store.addProduct(variant("S", 10, 0, 5))

	enquiry, err := svc.CreateForProduct(ctx, user, p.ID, 1, Contact{}, "")
	require.NoError(t, err)
	delete(store.products, p.ID)

	list, total, err := svc.List(ctx, EnquiryFilter{UserID: &user.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Items)
	assert.Empty(t, store.enquiries[enquiry.ID].Items, "pruned items are persisted")
}

func TestEnquiryService_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	store, svc, _ := newEnquiryFixture()
	user := store.addUser(models.RoleUser)
	p := store.addProduct(variant("S", 10, 0, 5))

	enquiry, err := svc.CreateForProduct(ctx, user, p.ID, 1, Contact{}, "")
	require.NoError(t, err)

	notes := "called back"
	updated, err := svc.UpdateStatus(ctx, enquiry.ID, models.EnquiryContacted, &notes)
	require.NoError(t, err)
	assert.Equal(t, models.EnquiryContacted, updated.Status)
	assert.Equal(t, notes, updated.Notes)

	_, err = svc.UpdateStatus(ctx, enquiry.ID, "shipped", nil)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.UpdateStatus(ctx, uuid.New(), models.EnquiryCompleted, nil)
	assert.ErrorIs(t, err, ErrEnquiryNotFound)

	_, _, err = svc.List(ctx, EnquiryFilter{Status: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestEnquiryService_UpdateStatusPrunesDeletedProducts(t *testing.T) {
	ctx := context.Background()
	store, svc, _ := newEnquiryFixture()
	user := store.addUser(models.RoleUser)
	p := store.addProduct(variant("S", 10, 0, 5))

	enquiry, err := svc.CreateForProduct(ctx, user, p.ID, 1, Contact{Email: "a@example.com"}, "")
	require.NoError(t, err)
	delete(store.products, p.ID)

	updated, err := svc.UpdateStatus(ctx, enquiry.ID, models.EnquiryCancelled, nil)
	require.NoError(t, err)
	assert.Equal(t, models.EnquiryCancelled, updated.Status)
	assert.Empty(t, updated.Items)
	assert.Empty(t, store.enquiries[enquiry.ID].Items)
}
