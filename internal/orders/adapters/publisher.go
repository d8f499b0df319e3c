package adapters

import (
	"context"

	"github.com/pageturn/fulfillment/internal/eventbus"
	"github.com/pageturn/fulfillment/internal/events"
)

// BusPublisher implements the order service's typed publishing port on
// top of the generic event bus.
type BusPublisher struct {
	bus eventbus.Publisher
}

func NewBusPublisher(bus eventbus.Publisher) *BusPublisher {
	return &BusPublisher{bus: bus}
}

func (p *BusPublisher) PublishOrderPaid(ctx context.Context, event events.OrderPaid) error {
	return p.bus.Publish(ctx, events.ExchangeOrders, events.KeyOrderPaid, event)
}

func (p *BusPublisher) PublishOrderCancelled(ctx context.Context, event events.OrderCancelled) error {
	return p.bus.Publish(ctx, events.ExchangeOrders, events.KeyOrderCancelled, event)
}

func (p *BusPublisher) PublishRefundRequested(ctx context.Context, event events.RefundRequested) error {
	return p.bus.Publish(ctx, events.ExchangeOrders, events.KeyRefundRequested, event)
}
