// Package catalog is the read-only port to the product catalog. Orders only
// consume it at creation time; everything copied from here into an order is a
// snapshot and is never re-read afterwards.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a product does not exist or is not publicly
// listed.
var ErrNotFound = errors.New("product not found")

// Product is the subset of catalog data the order core needs.
type Product struct {
	ID         string
	Title      string
	PriceCents int64
	Currency   string
	SupplierID string
	Published  bool
}

// Repository provides product lookup for order creation.
type Repository interface {
	// GetPublic returns the product only when it exists and is published;
	// otherwise ErrNotFound.
	GetPublic(ctx context.Context, id string) (*Product, error)
}
