package ports

import (
	"context"

	"github.com/pageturn/fulfillment/internal/events"
)

// EventPublisher defines the contract for publishing order lifecycle events.
type EventPublisher interface {
	PublishOrderPaid(ctx context.Context, event events.OrderPaid) error
	PublishOrderCancelled(ctx context.Context, event events.OrderCancelled) error
	PublishRefundRequested(ctx context.Context, event events.RefundRequested) error
}
