package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pageturn/fulfillment/internal/inventory/domain"
	"github.com/pageturn/fulfillment/internal/inventory/ports"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, bookID, sellerID string) (*domain.WarehouseItem, error) {
	query := `
		SELECT book_id, seller_id, quantity, price_cents
		FROM warehouse_items
		WHERE book_id = $1 AND seller_id = $2
	`

	var item domain.WarehouseItem
	err := r.pool.QueryRow(ctx, query, bookID, sellerID).Scan(
		&item.BookID,
		&item.SellerID,
		&item.Quantity,
		&item.PriceCents,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select warehouse item: %w", err)
	}

	return &item, nil
}

// Decrement clamps at zero in a single UPDATE so concurrent reservations
// for the same (book, seller) pair serialize on the row without any
// application-level locking.
func (r *Repository) Decrement(ctx context.Context, bookID, sellerID string, quantity int) (domain.DecrementResult, error) {
	query := `
		WITH before AS (
			SELECT quantity AS old_quantity
			FROM warehouse_items
			WHERE book_id = $1 AND seller_id = $2
			FOR UPDATE
		)
		UPDATE warehouse_items w
		SET quantity = GREATEST(w.quantity - $3, 0)
		FROM before
		WHERE w.book_id = $1 AND w.seller_id = $2
		RETURNING w.quantity, before.old_quantity
	`

	var newQuantity, oldQuantity int
	err := r.pool.QueryRow(ctx, query, bookID, sellerID, quantity).Scan(&newQuantity, &oldQuantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DecrementResult{}, ports.ErrNotFound
		}
		return domain.DecrementResult{}, fmt.Errorf("decrement warehouse item: %w", err)
	}

	removed := oldQuantity - newQuantity
	return domain.DecrementResult{
		NewQuantity: newQuantity,
		Removed:     removed,
		Clamped:     removed < quantity,
	}, nil
}

func (r *Repository) Restore(ctx context.Context, bookID, sellerID string, quantity int) error {
	query := `
		UPDATE warehouse_items
		SET quantity = quantity + $3
		WHERE book_id = $1 AND seller_id = $2
	`

	result, err := r.pool.Exec(ctx, query, bookID, sellerID, quantity)
	if err != nil {
		return fmt.Errorf("restore warehouse item: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}

	return nil
}

func (r *Repository) ListByBook(ctx context.Context, bookID string) ([]domain.WarehouseItem, error) {
	query := `
		SELECT book_id, seller_id, quantity, price_cents
		FROM warehouse_items
		WHERE book_id = $1
		ORDER BY seller_id
	`

	rows, err := r.pool.Query(ctx, query, bookID)
	if err != nil {
		return nil, fmt.Errorf("query warehouse items: %w", err)
	}
	defer rows.Close()

	var items []domain.WarehouseItem
	for rows.Next() {
		var item domain.WarehouseItem
		if err := rows.Scan(&item.BookID, &item.SellerID, &item.Quantity, &item.PriceCents); err != nil {
			return nil, fmt.Errorf("scan warehouse item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate warehouse items: %w", err)
	}

	return items, nil
}
