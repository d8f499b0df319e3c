package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pageturn/fulfillment/internal/sellerstats/domain"
	"github.com/pageturn/fulfillment/internal/sellerstats/ports"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, sellerID, bookID string) (*domain.Listing, error) {
	query := `
		SELECT seller_id, book_id, quantity, sold_count
		FROM listings
		WHERE seller_id = $1 AND book_id = $2
	`

	var listing domain.Listing
	err := r.pool.QueryRow(ctx, query, sellerID, bookID).Scan(
		&listing.SellerID,
		&listing.BookID,
		&listing.Quantity,
		&listing.SoldCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select listing: %w", err)
	}

	return &listing, nil
}

// RecordSale updates quantity and sold count in one statement so
// concurrent sales for the same listing serialize on the row.
func (r *Repository) RecordSale(ctx context.Context, sellerID, bookID string, quantity int) error {
	query := `
		UPDATE listings
		SET quantity = GREATEST(quantity - $3, 0),
		    sold_count = sold_count + $3
		WHERE seller_id = $1 AND book_id = $2
	`

	result, err := r.pool.Exec(ctx, query, sellerID, bookID, quantity)
	if err != nil {
		return fmt.Errorf("record sale: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}

	return nil
}

func (r *Repository) AddSellerSales(ctx context.Context, sellerID string, quantity int) error {
	query := `
		INSERT INTO seller_sales (seller_id, sold_count)
		VALUES ($1, $2)
		ON CONFLICT (seller_id) DO UPDATE
		SET sold_count = seller_sales.sold_count + EXCLUDED.sold_count
	`

	if _, err := r.pool.Exec(ctx, query, sellerID, quantity); err != nil {
		return fmt.Errorf("add seller sales: %w", err)
	}

	return nil
}
