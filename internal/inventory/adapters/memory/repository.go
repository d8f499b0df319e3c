// Package memory provides an in-memory warehouse store useful for local
// development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/pageturn/fulfillment/internal/inventory/domain"
	"github.com/pageturn/fulfillment/internal/inventory/ports"
)

type key struct {
	bookID   string
	sellerID string
}

// Repository stores warehouse rows in a mutex-guarded map. Decrement and
// Restore run under the lock, matching the atomicity the postgres
// adapter gets from single-statement updates.
type Repository struct {
	mu    sync.RWMutex
	items map[key]domain.WarehouseItem
}

// NewRepository constructs an empty in-memory repository.
func NewRepository() *Repository {
	return &Repository{items: make(map[key]domain.WarehouseItem)}
}

// Seed inserts or replaces a stock row.
func (r *Repository) Seed(item domain.WarehouseItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key{item.BookID, item.SellerID}] = item
}

// Get fetches a single stock row.
func (r *Repository) Get(_ context.Context, bookID, sellerID string) (*domain.WarehouseItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[key{bookID, sellerID}]
	if !ok {
		return nil, ports.ErrNotFound
	}
	copy := item
	return &copy, nil
}

// Decrement subtracts up to quantity, clamping at zero.
func (r *Repository) Decrement(_ context.Context, bookID, sellerID string, quantity int) (domain.DecrementResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{bookID, sellerID}
	item, ok := r.items[k]
	if !ok {
		return domain.DecrementResult{}, ports.ErrNotFound
	}

	removed := quantity
	clamped := false
	if removed > item.Quantity {
		removed = item.Quantity
		clamped = true
	}

	item.Quantity -= removed
	r.items[k] = item

	return domain.DecrementResult{
		NewQuantity: item.Quantity,
		Removed:     removed,
		Clamped:     clamped,
	}, nil
}

// Restore adds quantity back, uncapped.
func (r *Repository) Restore(_ context.Context, bookID, sellerID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{bookID, sellerID}
	item, ok := r.items[k]
	if !ok {
		return ports.ErrNotFound
	}

	item.Quantity += quantity
	r.items[k] = item
	return nil
}

// ListByBook returns every seller's row for the book, ordered by seller
// for stable summaries.
func (r *Repository) ListByBook(_ context.Context, bookID string) ([]domain.WarehouseItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var rows []domain.WarehouseItem
	for k, item := range r.items {
		if k.bookID == bookID {
			rows = append(rows, item)
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].SellerID < rows[j].SellerID
	})

	return rows, nil
}
