package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/utils"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=storefront dbname=storefront sslmode=disable",
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func catalogSQL(t *testing.T, q services.CatalogQuery) (string, []interface{}) {
	db := dryRunDB(t)
	var products []models.Product
	stmt := applyCatalogFilters(db.Model(&models.Product{}), q).
		Order(catalogOrder(q)).
		Limit(q.Page.Limit).Offset(q.Page.Offset).
		Find(&products).Statement
	return stmt.SQL.String(), stmt.Vars
}

func TestCatalogQuery_Filters(t *testing.T) {
	lo, hi := 10.0, 50.0
	sql, vars := catalogSQL(t, services.CatalogQuery{
		Search:      "silk",
		Category:    "clothing",
		SubCategory: "women",
		MinPrice:    &lo,
		MaxPrice:    &hi,
		SortBy:      services.SortCreatedAt,
		Page:        utils.NewPagination(2, 20),
	})

	assert.Contains(t, sql, "products.title ILIKE")
	assert.Contains(t, sql, "products.category = ")
	assert.Contains(t, sql, "products.sub_category = ")
	assert.NotContains(t, sql, "products.sub_sub_category = ")
	assert.Contains(t, sql, "v.price >= ")
	assert.Contains(t, sql, "v.price <= ")
	assert.Contains(t, sql, "ORDER BY products.created_at DESC, products.id")
	assert.Regexp(t, `LIMIT \$\d+ OFFSET \$\d+$`, sql)
	require.GreaterOrEqual(t, len(vars), 2)
	assert.Equal(t, []interface{}{20, 20}, vars[len(vars)-2:], "limit then offset")
	assert.Contains(t, vars, "%silk%")
	assert.Contains(t, vars, lo)
	assert.Contains(t, vars, hi)
}

// Rows tying on a computed key come back in id order, which carries no
// meaning; tests must not rely on it.
func TestCatalogOrder_TieBreakIsOnlyByID(t *testing.T) {
	assert.Equal(t, "products.created_at ASC, products.id",
		catalogOrder(services.CatalogQuery{SortBy: services.SortCreatedAt, Ascending: true}))

	byPrice := catalogOrder(services.CatalogQuery{SortBy: services.SortFirstVariantPrice})
	assert.Contains(t, byPrice, "ORDER BY v.position ASC LIMIT 1)")
	assert.Contains(t, byPrice, "DESC NULLS LAST, products.id")

	byRating := catalogOrder(services.CatalogQuery{SortBy: services.SortRating, Ascending: true})
	assert.Contains(t, byRating, "substring(v.quality")
	assert.Contains(t, byRating, "[0-9]{1,9}", "digit run is capped to fit int")
	assert.Contains(t, byRating, "ASC, products.id")
}

func TestCatalogQuery_SearchIsLiteral(t *testing.T) {
	_, vars := catalogSQL(t, services.CatalogQuery{Search: `50%_off\`, Page: utils.NewPagination(1, 20)})
	assert.Equal(t, `%50\%\_off\\%`, vars[0])
}

func TestCatalogQuery_NoFilters(t *testing.T) {
	sql, vars := catalogSQL(t, services.CatalogQuery{Page: utils.NewPagination(1, 20)})
	assert.NotContains(t, sql, "WHERE")
	assert.NotContains(t, sql, "OFFSET")
	assert.Equal(t, []interface{}{20}, vars)
}

func TestCatalogQuery_JewelleryByFirstVariantPrice(t *testing.T) {
	q := services.ParseCatalogQuery(func(key string) string {
		return map[string]string{"category": "jewellery", "sortBy": "variants.0.price", "sortOrder": "asc", "page": "1"}[key]
	})
	sql, vars := catalogSQL(t, q)

	assert.Contains(t, sql, "products.category = $1")
	assert.Equal(t, "jewellery", vars[0])
	assert.Contains(t, sql, "ASC NULLS LAST, products.id")
	assert.Equal(t, 20, vars[len(vars)-1])
}
