package models

import (
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	MinProductImages = 3
	MaxProductImages = 7
)

// Sizes is the fixed size enum a variant may carry.
var Sizes = []string{"XS", "S", "M", "L", "XL", "XXL", "Free Size"}

// ValidSize reports whether size is part of the enum.
func ValidSize(size string) bool {
	for _, s := range Sizes {
		if s == size {
			return true
		}
	}
	return false
}

type Product struct {
	BaseModel
	Title          string           `gorm:"index" json:"title"`
	Category       string           `gorm:"index" json:"category"`
	SubCategory    string           `gorm:"index" json:"sub_category"`
	SubSubCategory string           `gorm:"index" json:"sub_sub_category"`
	Description    string           `json:"description"`
	Available      bool             `gorm:"index" json:"available"`
	Images         []ProductImage   `gorm:"constraint:OnDelete:CASCADE" json:"images,omitempty"`
	Variants       []ProductVariant `gorm:"constraint:OnDelete:CASCADE" json:"variants,omitempty"`
}

// ProductVariant is a purchasable SKU. Discount is an absolute discounted
// price, not a percentage.
type ProductVariant struct {
	BaseModel
	ProductID   uuid.UUID      `gorm:"type:uuid;index" json:"product_id"`
	Position    int            `gorm:"index" json:"position"`
	ModelNumber string         `json:"model_number"`
	Size        string         `json:"size"`
	Price       float64        `gorm:"index" json:"price"`
	Discount    float64        `gorm:"default:0" json:"discount"`
	Quantity    int            `json:"quantity"`
	Quality     string         `json:"quality"`
	Tags        pq.StringArray `gorm:"type:text[]" json:"tags,omitempty"`
}

// EffectivePrice is the discount when set, otherwise the base price.
func (v ProductVariant) EffectivePrice() float64 {
	if v.Discount > 0 {
		return v.Discount
	}
	return v.Price
}

// ProductImage is either an inline blob or a hosted URL.
type ProductImage struct {
	BaseModel
	ProductID    uuid.UUID `gorm:"type:uuid;index" json:"product_id"`
	Data         []byte    `json:"-"`
	ContentType  string    `json:"content_type,omitempty"`
	URL          string    `json:"url,omitempty"`
	PublicID     string    `json:"public_id,omitempty"`
	DisplayOrder int       `json:"display_order"`
}

// Src returns the URL or, for blobs, a base64 data URI.
func (i ProductImage) Src() string {
	if len(i.Data) == 0 {
		return i.URL
	}
	contentType := i.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// HasStock reports whether any variant has quantity left.
func (p *Product) HasStock() bool {
	for _, v := range p.Variants {
		if v.Quantity > 0 {
			return true
		}
	}
	return false
}

// BeforeSave recomputes availability whenever variants are loaded.
func (p *Product) BeforeSave(tx *gorm.DB) error {
	if p.Variants != nil {
		p.Available = p.HasStock()
	}
	return nil
}

// Validate checks the invariants every stored product must hold.
func (p *Product) Validate() error {
	verr := &ValidationError{}

	if strings.TrimSpace(p.Title) == "" {
		verr.Add("title", "is required")
	}
	if strings.TrimSpace(p.Description) == "" {
		verr.Add("description", "is required")
	}
	if err := ValidateTaxonomy(p.Category, p.SubCategory, p.SubSubCategory); err != nil {
		for field, msg := range err.Fields {
			verr.Add(field, msg)
		}
	}

	if n := len(p.Images); n < MinProductImages || n > MaxProductImages {
		verr.Add("images", "must contain between 3 and 7 images")
	}
	for _, img := range p.Images {
		if len(img.Data) == 0 && img.URL == "" {
			verr.Add("images", "each image needs data or a url")
		}
		if len(img.Data) > 0 && img.ContentType == "" {
			verr.Add("images", "uploaded images need a content type")
		}
	}

	if len(p.Variants) == 0 {
		verr.Add("variants", "at least one variant is required")
	}
	for _, v := range p.Variants {
		if !ValidSize(v.Size) {
			verr.Add("variants.size", "must be one of "+strings.Join(Sizes, ", "))
		}
		if v.Price < 0 {
			verr.Add("variants.price", "must be >= 0")
		}
		if v.Discount < 0 {
			verr.Add("variants.discount", "must be >= 0")
		}
		if v.Quantity < 0 {
			verr.Add("variants.quantity", "must be >= 0")
		}
	}

	return verr.OrNil()
}

// FirstVariant returns the lowest-positioned variant, or nil.
func (p *Product) FirstVariant() *ProductVariant {
	if len(p.Variants) == 0 {
		return nil
	}
	first := &p.Variants[0]
	for i := range p.Variants {
		if p.Variants[i].Position < first.Position {
			first = &p.Variants[i]
		}
	}
	return first
}
