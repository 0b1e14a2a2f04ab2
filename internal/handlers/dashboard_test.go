package handlers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/utils"
)

type pagedProducts []models.Product

func (p pagedProducts) List(_ context.Context, pg utils.Pagination) ([]models.Product, int64, error) {
	end := pg.Offset + pg.Limit
	if end > len(p) {
		end = len(p)
	}
	if pg.Offset >= end {
		return nil, int64(len(p)), nil
	}
	return p[pg.Offset:end], int64(len(p)), nil
}

type memEnquiries struct {
	enquiries []models.Enquiry
	live      map[uuid.UUID]bool
	removed   []uuid.UUID
}

func (m *memEnquiries) CreateEnquiry(context.Context, *models.Enquiry) error { return nil }

func (m *memEnquiries) FindEnquiry(context.Context, uuid.UUID) (*models.Enquiry, error) {
	return nil, services.ErrEnquiryNotFound
}

func (m *memEnquiries) ListEnquiries(_ context.Context, filter services.EnquiryFilter) ([]models.Enquiry, int64, error) {
	out := make([]models.Enquiry, len(m.enquiries))
	copy(out, m.enquiries)
	return out, int64(len(out)), nil
}

func (m *memEnquiries) RemoveEnquiryItems(_ context.Context, ids []uuid.UUID) error {
	m.removed = append(m.removed, ids...)
	return nil
}

func (m *memEnquiries) UpdateEnquiry(context.Context, uuid.UUID, map[string]interface{}) error {
	return nil
}

func (m *memEnquiries) ExistingProductIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	found := map[uuid.UUID]bool{}
	for _, id := range ids {
		if m.live[id] {
			found[id] = true
		}
	}
	return found, nil
}

func TestDashboardPages(t *testing.T) {
	ctx := context.Background()

	products := make(pagedProducts, 3)
	for i := range products {
		products[i].ID = uuid.New()
		products[i].Title = "Product"
		products[i].Variants = []models.ProductVariant{{Size: "M", Price: 10}}
	}
	page, total, err := productsPage(ctx, products, utils.NewPagination(2, 2))
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	views, ok := page["items"].([]services.ProductView)
	require.True(t, ok)
	require.Len(t, views, 1)
	assert.Equal(t, products[2].ID, views[0].ID)
	assert.Equal(t, utils.NewPagination(2, 2).Meta(3), page["pagination"])

	kept, gone := uuid.New(), uuid.New()
	store := &memEnquiries{live: map[uuid.UUID]bool{kept: true}}
	enquiry := models.Enquiry{Status: models.EnquiryPending}
	enquiry.Items = []models.EnquiryItem{{ProductID: kept, Quantity: 1}, {ProductID: gone, Quantity: 2}}
	enquiry.Items[0].ID = uuid.New()
	enquiry.Items[1].ID = uuid.New()
	store.enquiries = []models.Enquiry{enquiry}

	cart := &memCart{products: map[uuid.UUID]*models.Product{}}
	service := services.NewEnquiryService(store, store, cart, cart, nil)
	page, total, err = enquiriesPage(ctx, service, utils.NewPagination(1, 20))
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	items, ok := page["items"].([]models.Enquiry)
	require.True(t, ok)
	require.Len(t, items, 1)
	require.Len(t, items[0].Items, 1, "items of deleted products are not shown")
	assert.Equal(t, kept, items[0].Items[0].ProductID)
	assert.Equal(t, []uuid.UUID{enquiry.Items[1].ID}, store.removed)
}
