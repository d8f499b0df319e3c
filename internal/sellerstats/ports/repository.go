package ports

import (
	"context"
	"errors"

	"github.com/pageturn/fulfillment/internal/sellerstats/domain"
)

// ListingRepository exposes seller catalog rows. RecordSale must be
// atomic per (seller, book) at the storage layer.
type ListingRepository interface {
	Get(ctx context.Context, sellerID, bookID string) (*domain.Listing, error)
	// RecordSale moves quantity from remaining stock to the sold
	// counter, clamping remaining at zero.
	RecordSale(ctx context.Context, sellerID, bookID string, quantity int) error
	// AddSellerSales bumps the seller-wide sold counter.
	AddSellerSales(ctx context.Context, sellerID string, quantity int) error
}

var (
	// ErrNotFound is returned when no listing exists for the pair.
	ErrNotFound = errors.New("listing not found")
)
