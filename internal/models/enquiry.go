package models

import (
	"time"

	"github.com/google/uuid"
)

// EnquiryStatus tracks how far staff got with an enquiry.
type EnquiryStatus string

const (
	EnquiryPending   EnquiryStatus = "pending"
	EnquiryContacted EnquiryStatus = "contacted"
	EnquiryCompleted EnquiryStatus = "completed"
	EnquiryCancelled EnquiryStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s EnquiryStatus) Valid() bool {
	switch s {
	case EnquiryPending, EnquiryContacted, EnquiryCompleted, EnquiryCancelled:
		return true
	}
	return false
}

type Enquiry struct {
	BaseModel
	UserID       uuid.UUID     `gorm:"type:uuid;index" json:"user_id"`
	User         *User         `gorm:"constraint:OnDelete:SET NULL" json:"user,omitempty"`
	ContactEmail string        `json:"contact_email"`
	ContactPhone string        `json:"contact_phone"`
	Status       EnquiryStatus `gorm:"type:varchar(16);default:pending;index" json:"status"`
	Notes        string        `json:"notes"`
	Items        []EnquiryItem `gorm:"constraint:OnDelete:CASCADE" json:"items"`
}

type EnquiryItem struct {
	BaseModel
	EnquiryID uuid.UUID `gorm:"type:uuid;index" json:"enquiry_id"`
	ProductID uuid.UUID `gorm:"type:uuid;index" json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// Wishlist is created lazily, one per user.
type Wishlist struct {
	BaseModel
	UserID uuid.UUID      `gorm:"type:uuid;uniqueIndex" json:"user_id"`
	Items  []WishlistItem `gorm:"constraint:OnDelete:CASCADE" json:"items"`
}

type WishlistItem struct {
	BaseModel
	WishlistID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_wishlist_product" json:"wishlist_id"`
	ProductID  uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_wishlist_product" json:"product_id"`
	AddedAt    time.Time `json:"added_at"`
}
