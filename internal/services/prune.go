package services

import (
	"context"

	"github.com/google/uuid"
)

// PruneDangling splits items into those whose product id is in live and the
// ones that point at deleted products.
func PruneDangling[T any](items []T, productID func(T) uuid.UUID, live map[uuid.UUID]bool) (kept, removed []T) {
	kept = make([]T, 0, len(items))
	for _, item := range items {
		if live[productID(item)] {
			kept = append(kept, item)
			continue
		}
		removed = append(removed, item)
	}
	return kept, removed
}

// ProductIndex reports which product ids still resolve.
type ProductIndex interface {
	ExistingProductIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error)
}
