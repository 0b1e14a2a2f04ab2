package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the privilege tier of an account.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super-admin"
)

// Valid reports whether r is one of the known tiers.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

const (
	// MaxActiveTokens caps UserToken rows per user.
	MaxActiveTokens = 5
	// MaxRecentlyViewed caps RecentlyViewed rows per user.
	MaxRecentlyViewed = 20
)

// User represents an account of any role. Email and phone are each unique when present.
type User struct {
	BaseModel
	FirstName      string           `json:"first_name"`
	LastName       string           `json:"last_name"`
	DisplayName    string           `json:"display_name"`
	Email          *string          `gorm:"uniqueIndex" json:"email,omitempty"`
	Phone          *string          `gorm:"uniqueIndex" json:"phone,omitempty"`
	PasswordHash   string           `json:"-"`
	Role           Role             `gorm:"type:varchar(16);default:user;index" json:"role"`
	IsVerified     bool             `json:"is_verified"`
	LastLoginAt    *time.Time       `json:"last_login_at"`
	CartVersion    int              `gorm:"not null;default:0" json:"-"`
	Tokens         []UserToken      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Cart           []CartItem       `gorm:"constraint:OnDelete:CASCADE" json:"cart,omitempty"`
	Addresses      []UserAddress    `gorm:"constraint:OnDelete:CASCADE" json:"addresses,omitempty"`
	RecentlyViewed []RecentlyViewed `gorm:"constraint:OnDelete:CASCADE" json:"recently_viewed,omitempty"`
}

// EmailValue returns the email or an empty string.
func (u *User) EmailValue() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}

// PhoneValue returns the phone or an empty string.
func (u *User) PhoneValue() string {
	if u.Phone == nil {
		return ""
	}
	return *u.Phone
}

// UserToken is one active session credential. Only a SHA-256 digest of the token is kept.
type UserToken struct {
	BaseModel
	UserID    uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Digest    string    `gorm:"size:64;index" json:"-"`
	IssuedAt  time.Time `gorm:"index" json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CartItem is one line of a user's cart.
type CartItem struct {
	BaseModel
	UserID    uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	ProductID uuid.UUID `gorm:"type:uuid;index" json:"product_id"`
	VariantID uuid.UUID `gorm:"type:uuid" json:"variant_id"`
	Size      string    `json:"size"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

// UserAddress is a delivery address. At most one per user has IsDefault set.
type UserAddress struct {
	BaseModel
	UserID      uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Label       string    `json:"label"`
	FullName    string    `json:"full_name"`
	Phone       string    `json:"phone"`
	AddressLine string    `json:"address_line"`
	Apartment   string    `json:"apartment"`
	City        string    `json:"city"`
	State       string    `json:"state"`
	PostalCode  string    `json:"postal_code"`
	Country     string    `json:"country"`
	IsDefault   bool      `json:"is_default"`
}

// RecentlyViewed records a product view for the recently viewed strip.
type RecentlyViewed struct {
	BaseModel
	UserID    uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_recent_user_product" json:"user_id"`
	ProductID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_recent_user_product" json:"product_id"`
	ViewedAt  time.Time `gorm:"index" json:"viewed_at"`
}

// EmailOTP keeps one-time login codes sent by email.
type EmailOTP struct {
	BaseModel
	Email     string     `gorm:"index" json:"email"`
	Code      string     `json:"-"`
	Purpose   string     `gorm:"size:32" json:"purpose"`
	ExpiresAt time.Time  `gorm:"index" json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
	Attempts  int        `gorm:"not null;default:0" json:"attempts"`
}

// PhoneVerification binds an SMS provider session to the phone it was sent to.
type PhoneVerification struct {
	BaseModel
	Phone     string     `gorm:"index" json:"phone"`
	SessionID string     `json:"-"`
	ExpiresAt time.Time  `gorm:"index" json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
	Attempts  int        `gorm:"not null;default:0" json:"attempts"`
}
