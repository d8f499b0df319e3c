// Package memory provides an in-memory listing store useful for local
// development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/pageturn/fulfillment/internal/sellerstats/domain"
	"github.com/pageturn/fulfillment/internal/sellerstats/ports"
)

type key struct {
	sellerID string
	bookID   string
}

// Repository stores listings and seller sales counters behind a mutex.
type Repository struct {
	mu          sync.RWMutex
	listings    map[key]domain.Listing
	sellerSales map[string]int
}

// NewRepository constructs an empty in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		listings:    make(map[key]domain.Listing),
		sellerSales: make(map[string]int),
	}
}

// Seed inserts or replaces a listing.
func (r *Repository) Seed(listing domain.Listing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings[key{listing.SellerID, listing.BookID}] = listing
}

// Get fetches a single listing.
func (r *Repository) Get(_ context.Context, sellerID, bookID string) (*domain.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	listing, ok := r.listings[key{sellerID, bookID}]
	if !ok {
		return nil, ports.ErrNotFound
	}
	copy := listing
	return &copy, nil
}

// RecordSale moves quantity from remaining stock to the sold counter.
func (r *Repository) RecordSale(_ context.Context, sellerID, bookID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{sellerID, bookID}
	listing, ok := r.listings[k]
	if !ok {
		return ports.ErrNotFound
	}

	listing.Quantity -= quantity
	if listing.Quantity < 0 {
		listing.Quantity = 0
	}
	listing.SoldCount += quantity
	r.listings[k] = listing
	return nil
}

// AddSellerSales bumps the seller-wide sold counter.
func (r *Repository) AddSellerSales(_ context.Context, sellerID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sellerSales[sellerID] += quantity
	return nil
}

// SellerSales returns the seller-wide sold counter.
func (r *Repository) SellerSales(sellerID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sellerSales[sellerID]
}
