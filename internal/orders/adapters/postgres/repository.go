package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pageturn/fulfillment/internal/orders/domain"
	"github.com/pageturn/fulfillment/internal/orders/ports"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderColumns = `id, customer_id, total_cents, status, reason,
	created_at, updated_at, paid_at, shipped_at, delivered_at, cancelled_at, refunded_at`

// Create inserts the order and its line items in one transaction.
func (r *Repository) Create(ctx context.Context, order domain.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create order: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = tx.Exec(ctx, query,
		order.ID,
		order.CustomerID,
		order.TotalCents,
		order.Status,
		order.Reason,
		order.CreatedAt,
		order.UpdatedAt,
		order.PaidAt,
		order.ShippedAt,
		order.DeliveredAt,
		order.CancelledAt,
		order.RefundedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (id, order_id, book_id, seller_id, quantity, unit_price_cents, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, item := range order.Items {
		if _, err := tx.Exec(ctx, itemQuery,
			item.ID,
			item.OrderID,
			item.BookID,
			item.SellerID,
			item.Quantity,
			item.UnitPriceCents,
			item.Status,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var order domain.Order
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&order.ID,
		&order.CustomerID,
		&order.TotalCents,
		&order.Status,
		&order.Reason,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.PaidAt,
		&order.ShippedAt,
		&order.DeliveredAt,
		&order.CancelledAt,
		&order.RefundedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	items, err := r.itemsByOrder(ctx, []string{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]

	return &order, nil
}

func (r *Repository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var statusFilter *string
	if filter.Status != nil {
		s := string(*filter.Status)
		statusFilter = &s
	}

	offset := (page - 1) * pageSize

	rows, err := r.pool.Query(ctx, query, statusFilter, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	var ids []string
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(
			&order.ID,
			&order.CustomerID,
			&order.TotalCents,
			&order.Status,
			&order.Reason,
			&order.CreatedAt,
			&order.UpdatedAt,
			&order.PaidAt,
			&order.ShippedAt,
			&order.DeliveredAt,
			&order.CancelledAt,
			&order.RefundedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	if len(orders) == 0 {
		return orders, nil
	}

	items, err := r.itemsByOrder(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}

	return orders, nil
}

// Update persists the order row and every line item status as one
// transaction, so a rollback never leaves the aggregate half-written.
func (r *Repository) Update(ctx context.Context, order domain.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update order: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE orders
		SET status = $2, reason = $3, updated_at = $4,
		    paid_at = $5, shipped_at = $6, delivered_at = $7, cancelled_at = $8, refunded_at = $9
		WHERE id = $1
	`
	result, err := tx.Exec(ctx, query,
		order.ID,
		order.Status,
		order.Reason,
		order.UpdatedAt,
		order.PaidAt,
		order.ShippedAt,
		order.DeliveredAt,
		order.CancelledAt,
		order.RefundedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}

	itemQuery := `UPDATE order_items SET status = $3 WHERE order_id = $1 AND id = $2`
	for _, item := range order.Items {
		if _, err := tx.Exec(ctx, itemQuery, order.ID, item.ID, item.Status); err != nil {
			return fmt.Errorf("update order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update order: %w", err)
	}
	return nil
}

// UpdateItemStatus sets a single line item's status. The stored status is
// locked and checked against the item graph first, so a raw write cannot
// skip a step; a same-status write is a redelivered no-op.
func (r *Repository) UpdateItemStatus(ctx context.Context, orderID, itemID string, status domain.ItemStatus) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update item status: %w", err)
	}
	defer tx.Rollback(ctx)

	var current domain.ItemStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM order_items WHERE order_id = $1 AND id = $2 FOR UPDATE`,
		orderID, itemID,
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ports.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load order item status: %w", err)
	}

	if current == status {
		return nil
	}
	if !domain.ValidItemTransition(current, status) {
		return &domain.TransitionError{Entity: "order item", From: string(current), To: string(status)}
	}

	query := `UPDATE order_items SET status = $3 WHERE order_id = $1 AND id = $2`
	if _, err := tx.Exec(ctx, query, orderID, itemID, status); err != nil {
		return fmt.Errorf("update order item status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update item status: %w", err)
	}
	return nil
}

func (r *Repository) itemsByOrder(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	query := `
		SELECT id, order_id, book_id, seller_id, quantity, unit_price_cents, status
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id
	`

	rows, err := r.pool.Query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	items := make(map[string][]domain.OrderItem)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.BookID,
			&item.SellerID,
			&item.Quantity,
			&item.UnitPriceCents,
			&item.Status,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items[item.OrderID] = append(items[item.OrderID], item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}
