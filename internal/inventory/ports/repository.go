package ports

import (
	"context"
	"errors"

	"github.com/pageturn/fulfillment/internal/inventory/domain"
)

// WarehouseRepository exposes the stock rows owned by the inventory
// subsystem. Decrement and Restore must be atomic per (book, seller) at
// the storage layer, because reservation handlers run in multiple
// processes.
type WarehouseRepository interface {
	Get(ctx context.Context, bookID, sellerID string) (*domain.WarehouseItem, error)
	// Decrement subtracts up to quantity from the row, clamping at zero.
	Decrement(ctx context.Context, bookID, sellerID string, quantity int) (domain.DecrementResult, error)
	// Restore adds quantity back, uncapped.
	Restore(ctx context.Context, bookID, sellerID string, quantity int) error
	// ListByBook returns every seller's row for the book, for the
	// per-book stock summary fan-in.
	ListByBook(ctx context.Context, bookID string) ([]domain.WarehouseItem, error)
}

var (
	// ErrNotFound is returned when no stock row exists for the pair.
	ErrNotFound = errors.New("warehouse item not found")
)
