package ports

import (
	"context"
	"errors"

	"github.com/pageturn/fulfillment/internal/orders/domain"
)

// OrderRepository exposes persistence operations required by the application layer.
type OrderRepository interface {
	Create(ctx context.Context, order domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)
	// Update persists the order's status, reason, transition timestamps
	// and per-item statuses as one write.
	Update(ctx context.Context, order domain.Order) error
	// UpdateItemStatus persists a single line item's status.
	UpdateItemStatus(ctx context.Context, orderID, itemID string, status domain.ItemStatus) error
}

// ListFilter narrows list queries by status and pagination.
type ListFilter struct {
	Status   *domain.OrderStatus
	Page     int
	PageSize int
}

var (
	// ErrNotFound is returned when the requested order does not exist.
	ErrNotFound = errors.New("order not found")
)
