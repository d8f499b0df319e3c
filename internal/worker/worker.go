// Package worker binds the saga consumers to their durable queues.
package worker

import (
	"context"
	"fmt"

	"github.com/pageturn/fulfillment/internal/compensation"
	"github.com/pageturn/fulfillment/internal/eventbus"
	"github.com/pageturn/fulfillment/internal/events"
	"github.com/pageturn/fulfillment/internal/inventory"
	"github.com/pageturn/fulfillment/internal/reconciler"
	"github.com/pageturn/fulfillment/internal/sellerstats"
)

// Consumers bundles the four queue handlers of the fulfillment saga.
type Consumers struct {
	Inventory    *inventory.ReservationHandler
	SellerStats  *sellerstats.Handler
	Compensation *compensation.Engine
	Reconciler   *reconciler.Reconciler
}

// Subscribe binds every consumer to its queue; the reconciler serves two
// queues, compensation rollback and customer refunds. Each queue receives
// an independent copy of matching events and handlers on distinct queues
// run concurrently.
func Subscribe(ctx context.Context, bus eventbus.Subscriber, c Consumers, metrics *eventbus.Metrics) error {
	bindings := []struct {
		queue   string
		keys    []string
		handler eventbus.Handler
	}{
		{
			queue:   inventory.Queue,
			keys:    []string{events.KeyOrderPaid},
			handler: c.Inventory.HandleOrderPaid,
		},
		{
			queue:   sellerstats.Queue,
			keys:    []string{events.KeyOrderPaid},
			handler: c.SellerStats.HandleOrderPaid,
		},
		{
			queue: compensation.Queue,
			keys: []string{
				events.KeyOrderPaid,
				events.KeyItemFulfilled,
				events.KeyInventoryFailed,
				events.KeySellerStatsFailed,
			},
			handler: c.Compensation.Handle,
		},
		{
			queue:   reconciler.Queue,
			keys:    []string{events.KeyCompensationRequired},
			handler: c.Reconciler.HandleCompensationRequired,
		},
		{
			queue:   reconciler.RefundQueue,
			keys:    []string{events.KeyRefundRequested},
			handler: c.Reconciler.HandleRefundRequested,
		},
	}

	for _, binding := range bindings {
		handler := binding.handler
		if metrics != nil {
			handler = withConsumeMetrics(binding.queue, metrics, handler)
		}
		if err := bus.Subscribe(ctx, binding.queue, events.ExchangeOrders, binding.keys, handler); err != nil {
			return fmt.Errorf("subscribe %s: %w", binding.queue, err)
		}
	}
	return nil
}

func withConsumeMetrics(queue string, metrics *eventbus.Metrics, next eventbus.Handler) eventbus.Handler {
	return func(ctx context.Context, msg eventbus.Message) error {
		err := next(ctx, msg)
		switch {
		case err == nil:
			metrics.RecordConsumed(ctx, queue, "ack")
		case eventbus.IsDiscard(err):
			metrics.RecordConsumed(ctx, queue, "discard")
		default:
			metrics.RecordConsumed(ctx, queue, "requeue")
		}
		return err
	}
}
