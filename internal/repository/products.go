package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/utils"
)

const (
	firstVariantEffectivePriceSQL = `(SELECT CASE WHEN v.discount > 0 THEN v.discount ELSE v.price END
		FROM product_variants v WHERE v.product_id = products.id
		ORDER BY v.position ASC LIMIT 1)`
	firstVariantRatingSQL = `COALESCE((SELECT NULLIF(substring(v.quality from '^\s*([+-]?[0-9]{1,9})([^0-9]|$)'), '')::int
		FROM product_variants v WHERE v.product_id = products.id
		ORDER BY v.position ASC LIMIT 1), 0)`
)

// ProductRepository stores products with their variants and images.
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository constructs ProductRepository.
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func withDetails(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("display_order asc") })
}

// FindProduct implements services.ProductStore.
func (r *ProductRepository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := withDetails(r.db.WithContext(ctx)).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

// FindProducts implements services.ProductStore.
func (r *ProductRepository) FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	found := make(map[uuid.UUID]*models.Product, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	var products []models.Product
	if err := withDetails(r.db.WithContext(ctx)).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	for i := range products {
		found[products[i].ID] = &products[i]
	}
	return found, nil
}

// ExistingProductIDs implements services.ProductIndex.
func (r *ProductRepository) ExistingProductIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	live := make(map[uuid.UUID]bool, len(ids))
	if len(ids) == 0 {
		return live, nil
	}
	var found []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id IN ?", ids).
		Pluck("id", &found).Error; err != nil {
		return nil, err
	}
	for _, id := range found {
		live[id] = true
	}
	return live, nil
}

// likeEscaper makes LIKE metacharacters match literally. Backslash is the
// Postgres default escape.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// applyCatalogFilters adds the WHERE clauses of q. Price bounds are matched
// independently against any variant, the way an array field match behaves.
func applyCatalogFilters(query *gorm.DB, q services.CatalogQuery) *gorm.DB {
	if q.Search != "" {
		like := containsPattern(q.Search)
		query = query.Where(
			"products.title ILIKE ? OR products.category ILIKE ? OR products.sub_category ILIKE ? OR products.sub_sub_category ILIKE ?",
			like, like, like, like,
		)
	}
	if q.Category != "" {
		query = query.Where("products.category = ?", q.Category)
	}
	if q.SubCategory != "" {
		query = query.Where("products.sub_category = ?", q.SubCategory)
	}
	if q.SubSubCategory != "" {
		query = query.Where("products.sub_sub_category = ?", q.SubSubCategory)
	}
	if q.MinPrice != nil {
		query = query.Where("EXISTS (SELECT 1 FROM product_variants v WHERE v.product_id = products.id AND v.price >= ?)", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		query = query.Where("EXISTS (SELECT 1 FROM product_variants v WHERE v.product_id = products.id AND v.price <= ?)", *q.MaxPrice)
	}
	return query
}

// catalogOrder returns the ORDER BY expression for q. Rows that tie on a
// computed key fall back to id, which is not a meaningful order.
func catalogOrder(q services.CatalogQuery) string {
	dir := "DESC"
	if q.Ascending {
		dir = "ASC"
	}
	switch q.SortBy {
	case services.SortFirstVariantPrice:
		return firstVariantEffectivePriceSQL + " " + dir + " NULLS LAST, products.id"
	case services.SortRating:
		return firstVariantRatingSQL + " " + dir + ", products.id"
	default:
		return "products.created_at " + dir + ", products.id"
	}
}

// SearchProducts implements services.CatalogSearcher.
func (r *ProductRepository) SearchProducts(ctx context.Context, q services.CatalogQuery) ([]models.Product, int64, error) {
	base := applyCatalogFilters(r.db.WithContext(ctx).Model(&models.Product{}), q)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var products []models.Product
	if err := withDetails(base.Session(&gorm.Session{})).
		Order(catalogOrder(q)).
		Limit(q.Page.Limit).Offset(q.Page.Offset).
		Find(&products).Error; err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// List pages through all products for staff screens, newest first.
func (r *ProductRepository) List(ctx context.Context, pg utils.Pagination) ([]models.Product, int64, error) {
	return r.SearchProducts(ctx, services.CatalogQuery{SortBy: services.SortCreatedAt, Page: pg})
}

// Count returns the number of products and how many are available.
func (r *ProductRepository) Count(ctx context.Context) (total, available int64, err error) {
	if err = r.db.WithContext(ctx).Model(&models.Product{}).Count(&total).Error; err != nil {
		return
	}
	err = r.db.WithContext(ctx).Model(&models.Product{}).Where("available = ?", true).Count(&available).Error
	return
}

// Create inserts a product with its variants and images.
func (r *ProductRepository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// Replace overwrites product fields and swaps its variants and images. It
// returns the public ids of hosted images that are no longer referenced.
func (r *ProductRepository) Replace(ctx context.Context, product *models.Product) ([]string, error) {
	var orphaned []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Product
		if err := tx.Preload("Images").First(&existing, "id = ?", product.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return services.ErrProductNotFound
			}
			return err
		}

		kept := map[string]bool{}
		for _, img := range product.Images {
			if img.PublicID != "" {
				kept[img.PublicID] = true
			}
		}
		for _, img := range existing.Images {
			if img.PublicID != "" && !kept[img.PublicID] {
				orphaned = append(orphaned, img.PublicID)
			}
		}

		if err := tx.Where("product_id = ?", product.ID).Delete(&models.ProductVariant{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", product.ID).Delete(&models.ProductImage{}).Error; err != nil {
			return err
		}

		product.CreatedAt = existing.CreatedAt
		for i := range product.Variants {
			product.Variants[i].ID = uuid.Nil
			product.Variants[i].ProductID = product.ID
		}
		for i := range product.Images {
			product.Images[i].ID = uuid.Nil
			product.Images[i].ProductID = product.ID
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(product).Error
	})
	return orphaned, err
}

// UpdateVariantStock sets the quantity of one variant and refreshes availability.
func (r *ProductRepository) UpdateVariantStock(ctx context.Context, productID, variantID uuid.UUID, quantity int) (*models.Product, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ProductVariant{}).
			Where("id = ? AND product_id = ?", variantID, productID).
			Update("quantity", quantity)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return services.ErrProductNotFound
		}

		var product models.Product
		if err := tx.Preload("Variants").First(&product, "id = ?", productID).Error; err != nil {
			return err
		}
		return tx.Model(&product).UpdateColumn("available", product.HasStock()).Error
	})
	if err != nil {
		return nil, err
	}
	return r.FindProduct(ctx, productID)
}

// Delete removes a product and returns the public ids of its hosted images.
// Carts, wishlists and enquiries keep their references and prune them on read.
func (r *ProductRepository) Delete(ctx context.Context, id uuid.UUID) ([]string, error) {
	var publicIDs []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ProductImage{}).
			Where("product_id = ? AND public_id <> ''", id).
			Pluck("public_id", &publicIDs).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", id).Delete(&models.ProductVariant{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", id).Delete(&models.ProductImage{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Product{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return services.ErrProductNotFound
		}
		return nil
	})
	return publicIDs, err
}
