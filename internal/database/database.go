package database

import (
	"database/sql"
	"errors"
	"log"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/utils"
)

var db *gorm.DB

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) *gorm.DB {
	if db != nil {
		return db
	}

	if err := ensureDatabase(dsn); err != nil {
		log.Fatalf("failed to ensure database: %v", err)
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := conn.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		log.Printf("warning: failed to ensure uuid-ossp extension: %v", err)
	}

	if err := migrate(conn); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	if err := createIndexes(conn); err != nil {
		log.Printf("warning: failed to create catalog indexes: %v", err)
	}

	db = conn
	return db
}

// DB exposes the initialized gorm.DB instance.
func DB() *gorm.DB {
	return db
}

func migrate(conn *gorm.DB) error {
	migrations := []interface{}{
		&models.User{},
		&models.UserToken{},
		&models.CartItem{},
		&models.UserAddress{},
		&models.RecentlyViewed{},
		&models.EmailOTP{},
		&models.PhoneVerification{},
		&models.Product{},
		&models.ProductVariant{},
		&models.ProductImage{},
		&models.Enquiry{},
		&models.EnquiryItem{},
		&models.Wishlist{},
		&models.WishlistItem{},
	}

	for _, migration := range migrations {
		if err := conn.AutoMigrate(migration); err != nil {
			return err
		}
	}

	return nil
}

// createIndexes adds the catalog indexes gorm tags cannot express.
func createIndexes(conn *gorm.DB) error {
	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_products_taxonomy ON products (category, sub_category, sub_sub_category)`,
		`CREATE INDEX IF NOT EXISTS idx_variants_product_position ON product_variants (product_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_variants_price ON product_variants (price)`,
	}
	for _, stmt := range statements {
		if err := conn.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// SeedSuperAdmin creates the super-admin account when it does not exist yet.
// An existing account with that email is promoted.
func SeedSuperAdmin(conn *gorm.DB, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}

	var existing models.User
	err := conn.Where("email = ?", email).First(&existing).Error
	if err == nil {
		if existing.Role == models.RoleSuperAdmin {
			return nil
		}
		log.Printf("[Seed] promoting %s to super-admin", email)
		return conn.Model(&existing).Update("role", models.RoleSuperAdmin).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	user := models.User{
		FirstName:    "Super",
		LastName:     "Admin",
		DisplayName:  "Super Admin",
		Email:        &email,
		PasswordHash: hash,
		Role:         models.RoleSuperAdmin,
		IsVerified:   true,
	}
	log.Printf("[Seed] creating super-admin %s", email)
	return conn.Create(&user).Error
}

func ensureDatabase(dsn string) error {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return err
	}

	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		return nil
	}

	parsed.Path = "/postgres"
	masterDSN := parsed.String()

	sqlDB, err := sql.Open("postgres", masterDSN)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return err
	}

	var exists bool
	if err := sqlDB.QueryRow("SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists); err != nil {
		return err
	}

	if exists {
		return nil
	}

	_, err = sqlDB.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName))
	return err
}
