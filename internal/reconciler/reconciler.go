// Package reconciler executes order rollback: compensation requests from
// the engine (restore stock, cancel, refund settled payments) and
// customer refund requests (refund first, then flip to refunded).
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pageturn/fulfillment/internal/eventbus"
	"github.com/pageturn/fulfillment/internal/events"
	invports "github.com/pageturn/fulfillment/internal/inventory/ports"
	"github.com/pageturn/fulfillment/internal/orders/domain"
	orderports "github.com/pageturn/fulfillment/internal/orders/ports"
)

// Queue is the durable queue name for the compensation consumer.
const Queue = "order-reconciler"

// RefundQueue is the durable queue name for the customer refund consumer.
const RefundQueue = "order-refunder"

// Reconciler consumes compensation requests and drives the order to its
// cancelled terminal state.
type Reconciler struct {
	orders    orderports.OrderRepository
	warehouse invports.WarehouseRepository
	payments  orderports.PaymentGateway
	bus       eventbus.Publisher
	logger    *slog.Logger
}

// NewReconciler wires required dependencies.
func NewReconciler(
	orders orderports.OrderRepository,
	warehouse invports.WarehouseRepository,
	payments orderports.PaymentGateway,
	bus eventbus.Publisher,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		orders:    orders,
		warehouse: warehouse,
		payments:  payments,
		bus:       bus,
		logger:    logger,
	}
}

// HandleCompensationRequired is the bus handler for
// order.compensation.required events.
func (r *Reconciler) HandleCompensationRequired(ctx context.Context, msg eventbus.Message) error {
	var request events.CompensationRequired
	if err := msg.Decode(&request); err != nil {
		return eventbus.Discard(err)
	}
	if request.OrderID == "" {
		return eventbus.Discard(fmt.Errorf("compensation request missing order id"))
	}

	order, err := r.orders.GetByID(ctx, request.OrderID)
	if err != nil {
		if errors.Is(err, orderports.ErrNotFound) {
			return eventbus.Discard(fmt.Errorf("order %s not found", request.OrderID))
		}
		return fmt.Errorf("load order %s: %w", request.OrderID, err)
	}

	// Replay guard: a redelivered request for an already-cancelled or
	// refunded order must not restore stock a second time.
	if order.Status == domain.StatusCancelled || order.Status == domain.StatusRefunded {
		r.logger.Debug("order already rolled back", "order_id", order.ID, "status", order.Status)
		return nil
	}

	// Restore before cancelling. If the process dies mid-restoration the
	// order is still not terminal, so the redelivered request resumes
	// here; per-item statuses keep already-restored items from doubling.
	if err := r.restoreFulfilledItems(ctx, order); err != nil {
		return err
	}

	wasPaid := order.PaidAt != nil

	if err := order.Cancel(request.Reason); err != nil {
		// An illegal edge here means the order moved past the point of
		// rollback (e.g. delivered) while compensation was in flight.
		return eventbus.Discard(fmt.Errorf("cancel order %s: %w", order.ID, err))
	}
	if err := r.orders.Update(ctx, *order); err != nil {
		return fmt.Errorf("persist cancelled order %s: %w", order.ID, err)
	}

	if wasPaid {
		r.refund(ctx, order)
	}

	r.publishCancelled(ctx, order)

	r.logger.Info("order rolled back",
		"order_id", order.ID, "failed_items", len(request.FailedItems), "reason", request.Reason)
	return nil
}

// HandleRefundRequested is the bus handler for order.refund.requested
// events. Unlike compensation rollback, the monetary refund must settle
// before the status flips: a gateway failure or decline requeues the
// request rather than leaving a refunded order with unreturned money.
func (r *Reconciler) HandleRefundRequested(ctx context.Context, msg eventbus.Message) error {
	var request events.RefundRequested
	if err := msg.Decode(&request); err != nil {
		return eventbus.Discard(err)
	}
	if request.OrderID == "" {
		return eventbus.Discard(fmt.Errorf("refund request missing order id"))
	}

	order, err := r.orders.GetByID(ctx, request.OrderID)
	if err != nil {
		if errors.Is(err, orderports.ErrNotFound) {
			return eventbus.Discard(fmt.Errorf("order %s not found", request.OrderID))
		}
		return fmt.Errorf("load order %s: %w", request.OrderID, err)
	}

	if order.Status == domain.StatusCancelled || order.Status == domain.StatusRefunded {
		r.logger.Debug("order already rolled back", "order_id", order.ID, "status", order.Status)
		return nil
	}

	// Item statuses keep a redelivered request from restoring twice, same
	// as compensation rollback.
	if err := r.restoreFulfilledItems(ctx, order); err != nil {
		return err
	}

	result, err := r.payments.ProcessRefund(ctx, order.ID, order.TotalCents)
	if err != nil {
		return fmt.Errorf("refund order %s: %w", order.ID, err)
	}
	if !result.Success {
		return fmt.Errorf("refund order %s declined: %s", order.ID, result.Message)
	}

	if err := order.Refund(request.Reason); err != nil {
		// The order reached a state with no refund edge while the request
		// was in flight; the money is already on its way back.
		return eventbus.Discard(fmt.Errorf("refund order %s: %w", order.ID, err))
	}
	if err := r.orders.Update(ctx, *order); err != nil {
		return fmt.Errorf("persist refunded order %s: %w", order.ID, err)
	}

	r.publishRefunded(ctx, order)

	r.logger.Info("order refunded",
		"order_id", order.ID, "amount_cents", order.TotalCents, "reason", request.Reason)
	return nil
}

// restoreFulfilledItems adds reserved quantities back for every item the
// inventory handler had fulfilled, and marks each compensated as it goes.
func (r *Reconciler) restoreFulfilledItems(ctx context.Context, order *domain.Order) error {
	for i := range order.Items {
		item := &order.Items[i]
		if item.Status != domain.ItemFulfilled {
			continue
		}

		if err := r.warehouse.Restore(ctx, item.BookID, item.SellerID, item.Quantity); err != nil {
			return fmt.Errorf("restore stock for item %s: %w", item.ID, err)
		}
		if err := item.MarkCompensated(); err != nil {
			return fmt.Errorf("mark item %s compensated: %w", item.ID, err)
		}
		if err := r.orders.UpdateItemStatus(ctx, order.ID, item.ID, item.Status); err != nil {
			return fmt.Errorf("persist item %s status: %w", item.ID, err)
		}

		r.logger.Info("stock restored",
			"order_id", order.ID, "order_item_id", item.ID,
			"book_id", item.BookID, "seller_id", item.SellerID, "quantity", item.Quantity)
	}
	return nil
}

// refund asks the payment collaborator to return the settled amount.
// A declined or failed refund is logged for manual follow-up; it does
// not reopen the saga.
func (r *Reconciler) refund(ctx context.Context, order *domain.Order) {
	result, err := r.payments.ProcessRefund(ctx, order.ID, order.TotalCents)
	if err != nil {
		r.logger.Error("refund request failed",
			"order_id", order.ID, "amount_cents", order.TotalCents, "error", err)
		return
	}
	if !result.Success {
		r.logger.Error("refund declined",
			"order_id", order.ID, "amount_cents", order.TotalCents, "message", result.Message)
		return
	}
	r.logger.Info("refund issued", "order_id", order.ID, "amount_cents", order.TotalCents)
}

func (r *Reconciler) publishCancelled(ctx context.Context, order *domain.Order) {
	items := make([]events.OrderCancelledItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, events.OrderCancelledItem{
			BookID:   item.BookID,
			SellerID: item.SellerID,
			Quantity: item.Quantity,
		})
	}

	cancelled := events.OrderCancelled{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		CancelledAt: time.Now().UTC(),
		Reason:      order.Reason,
		Items:       items,
	}
	if order.CancelledAt != nil {
		cancelled.CancelledAt = *order.CancelledAt
	}

	if err := r.bus.Publish(ctx, events.ExchangeOrders, events.KeyOrderCancelled, cancelled); err != nil {
		r.logger.Error("failed to publish order cancelled",
			"order_id", order.ID, "error", err)
	}
}

func (r *Reconciler) publishRefunded(ctx context.Context, order *domain.Order) {
	refunded := events.OrderRefunded{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		AmountCents: order.TotalCents,
		RefundedAt:  time.Now().UTC(),
		Reason:      order.Reason,
	}
	if order.RefundedAt != nil {
		refunded.RefundedAt = *order.RefundedAt
	}

	if err := r.bus.Publish(ctx, events.ExchangeOrders, events.KeyOrderRefunded, refunded); err != nil {
		r.logger.Error("failed to publish order refunded",
			"order_id", order.ID, "error", err)
	}
}
