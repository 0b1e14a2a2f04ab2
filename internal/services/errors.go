package services

import "errors"

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrOutOfStock        = errors.New("product is out of stock")
	ErrInsufficientStock = errors.New("not enough stock for the requested quantity")
	ErrInvalidQuantity   = errors.New("quantity must be between 1 and 10")
	ErrCartLineNotFound  = errors.New("cart item not found")
	ErrCartConflict      = errors.New("cart was modified concurrently, retry")
	ErrEmptyCart         = errors.New("cart is empty")

	ErrInvalidToken    = errors.New("invalid or expired token")
	ErrUnknownIdentity = errors.New("account not found or session revoked")

	ErrWishlistItemNotFound = errors.New("product is not in the wishlist")

	ErrEnquiryNotFound = errors.New("enquiry not found")
	ErrInvalidStatus   = errors.New("invalid enquiry status")

	ErrInvalidCode     = errors.New("invalid or expired verification code")
	ErrTooManyAttempts = errors.New("too many attempts, request a new code")
	ErrProviderFailed  = errors.New("upstream provider failed")
	ErrNotConfigured   = errors.New("integration is not configured")
)
