// Package inventory consumes paid-order events and reserves stock per
// line item: an idempotent, clamped decrement of the seller's warehouse
// row followed by a per-book stock summary for the read models.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pageturn/fulfillment/internal/eventbus"
	"github.com/pageturn/fulfillment/internal/events"
	"github.com/pageturn/fulfillment/internal/idempotency"
	invdomain "github.com/pageturn/fulfillment/internal/inventory/domain"
	invports "github.com/pageturn/fulfillment/internal/inventory/ports"
	"github.com/pageturn/fulfillment/internal/orders/domain"
	"github.com/pageturn/fulfillment/internal/orders/ports"
)

// Queue is the durable queue name for this consumer.
const Queue = "inventory-service"

// markerPrefix namespaces processed markers so the seller statistics
// handler can track the same order items independently.
const markerPrefix = "inventory"

// ReservationHandler decrements warehouse stock for each line item of a
// paid order. Items are independent: one item's failure never aborts its
// siblings.
type ReservationHandler struct {
	warehouse  invports.WarehouseRepository
	orders     ports.OrderRepository
	markers    idempotency.Marker
	bus        eventbus.Publisher
	logger     *slog.Logger
	retryLimit int
}

// NewReservationHandler wires required dependencies. retryLimit bounds
// in-line retries of transient persistence errors per item.
func NewReservationHandler(
	warehouse invports.WarehouseRepository,
	orders ports.OrderRepository,
	markers idempotency.Marker,
	bus eventbus.Publisher,
	logger *slog.Logger,
	retryLimit int,
) *ReservationHandler {
	if retryLimit <= 0 {
		retryLimit = 3
	}
	return &ReservationHandler{
		warehouse:  warehouse,
		orders:     orders,
		markers:    markers,
		bus:        bus,
		logger:     logger,
		retryLimit: retryLimit,
	}
}

// HandleOrderPaid is the bus handler for order.paid events.
func (h *ReservationHandler) HandleOrderPaid(ctx context.Context, msg eventbus.Message) error {
	var event events.OrderPaid
	if err := msg.Decode(&event); err != nil {
		return eventbus.Discard(err)
	}
	if event.OrderID == "" || len(event.Items) == 0 {
		return eventbus.Discard(fmt.Errorf("order.paid event missing order id or items"))
	}

	touchedBooks := make(map[string]struct{})

	for _, item := range event.Items {
		processed, err := h.reserveItem(ctx, event.OrderID, item)
		if err != nil {
			return err
		}
		if processed {
			touchedBooks[item.BookID] = struct{}{}
		}
	}

	// Fan-in: one summary per distinct book regardless of how many
	// seller rows the order touched.
	for bookID := range touchedBooks {
		if err := h.publishStockSummary(ctx, bookID); err != nil {
			h.logger.Error("failed to publish stock summary", "book_id", bookID, "error", err)
		}
	}

	return nil
}

// reserveItem processes one line item. The returned bool reports whether
// this delivery performed the reservation (false on replay skip).
func (h *ReservationHandler) reserveItem(ctx context.Context, orderID string, item events.OrderPaidItem) (bool, error) {
	claimed, err := h.markers.MarkOnce(ctx, markerPrefix+":"+item.OrderItemID)
	if err != nil {
		return false, fmt.Errorf("claim marker for item %s: %w", item.OrderItemID, err)
	}
	if !claimed {
		h.logger.Debug("skipping already processed item",
			"order_id", orderID, "order_item_id", item.OrderItemID)
		return false, nil
	}

	h.markItem(ctx, orderID, item.OrderItemID, (*domain.OrderItem).MarkProcessing)

	result, err := h.decrementWithRetry(ctx, item)
	switch {
	case errors.Is(err, invports.ErrNotFound):
		h.reportFailure(ctx, orderID, item, events.FailureInventoryNotFound, err.Error(), 0)
		return true, nil
	case err != nil:
		// Transient persistence error that survived every retry.
		h.reportFailure(ctx, orderID, item, events.FailurePersistence, err.Error(), h.retryLimit)
		return true, nil
	}

	if result.Clamped {
		// Return the partial take before reporting: rollback only
		// restores fulfilled items, so these units would otherwise leak.
		if result.Removed > 0 {
			if err := h.warehouse.Restore(ctx, item.BookID, item.SellerID, result.Removed); err != nil {
				h.logger.Error("failed to return clamped stock",
					"order_item_id", item.OrderItemID, "book_id", item.BookID,
					"seller_id", item.SellerID, "quantity", result.Removed, "error", err)
			}
		}
		detail := fmt.Sprintf("requested %d, only %d available", item.Quantity, result.Removed)
		h.reportFailure(ctx, orderID, item, events.FailureInsufficientStock, detail, 0)
		return true, nil
	}

	h.markItem(ctx, orderID, item.OrderItemID, (*domain.OrderItem).MarkFulfilled)

	fulfilled := events.ItemFulfilled{
		OrderID:     orderID,
		OrderItemID: item.OrderItemID,
		Source:      events.SourceInventory,
		FulfilledAt: time.Now().UTC(),
	}
	if err := h.bus.Publish(ctx, events.ExchangeOrders, events.KeyItemFulfilled, fulfilled); err != nil {
		return true, fmt.Errorf("publish item fulfilled: %w", err)
	}

	return true, nil
}

// decrementWithRetry retries transient persistence errors in-line up to
// the configured bound. A missing row is structural and never retried.
func (h *ReservationHandler) decrementWithRetry(ctx context.Context, item events.OrderPaidItem) (invdomain.DecrementResult, error) {
	var result invdomain.DecrementResult
	var err error
	for attempt := 1; attempt <= h.retryLimit; attempt++ {
		result, err = h.warehouse.Decrement(ctx, item.BookID, item.SellerID, item.Quantity)
		if err == nil || errors.Is(err, invports.ErrNotFound) {
			return result, err
		}
		h.logger.Warn("transient decrement failure",
			"order_item_id", item.OrderItemID, "attempt", attempt, "error", err)
	}
	return result, err
}

func (h *ReservationHandler) reportFailure(ctx context.Context, orderID string, item events.OrderPaidItem, failureType, detail string, attempts int) {
	h.markItem(ctx, orderID, item.OrderItemID, (*domain.OrderItem).MarkFailed)

	failure := events.InventoryReservationFailed{
		OrderID:       orderID,
		OrderItemID:   item.OrderItemID,
		BookID:        item.BookID,
		SellerID:      item.SellerID,
		Quantity:      item.Quantity,
		FailureType:   failureType,
		Error:         detail,
		FailedAt:      time.Now().UTC(),
		RetryAttempts: attempts,
	}
	if err := h.bus.Publish(ctx, events.ExchangeOrders, events.KeyInventoryFailed, failure); err != nil {
		h.logger.Error("failed to publish reservation failure",
			"order_id", orderID, "order_item_id", item.OrderItemID, "error", err)
	}
}

// markItem loads the line item, applies the transition method, and
// persists the new status. Illegal edges are logged loudly and otherwise
// ignored: they indicate out-of-order delivery, and retrying the message
// cannot repair them.
func (h *ReservationHandler) markItem(ctx context.Context, orderID, itemID string, move func(*domain.OrderItem) error) {
	order, err := h.orders.GetByID(ctx, orderID)
	if err != nil {
		h.logger.Error("failed to load order for item transition",
			"order_id", orderID, "order_item_id", itemID, "error", err)
		return
	}

	item := order.Item(itemID)
	if item == nil {
		h.logger.Error("order item not found",
			"order_id", orderID, "order_item_id", itemID)
		return
	}
	if err := move(item); err != nil {
		h.logger.Error("illegal item transition",
			"order_id", orderID, "order_item_id", itemID, "error", err)
		return
	}

	if err := h.orders.UpdateItemStatus(ctx, orderID, itemID, item.Status); err != nil {
		h.logger.Error("failed to update item status",
			"order_id", orderID, "order_item_id", itemID, "status", item.Status, "error", err)
	}
}

func (h *ReservationHandler) publishStockSummary(ctx context.Context, bookID string) error {
	rows, err := h.warehouse.ListByBook(ctx, bookID)
	if err != nil {
		return fmt.Errorf("list stock for book %s: %w", bookID, err)
	}

	summary := events.BookStockUpdated{BookID: bookID}
	for _, row := range rows {
		summary.TotalStock += row.Quantity
		if row.Quantity > 0 {
			summary.AvailableSellers++
			if summary.MinPriceCents == 0 || row.PriceCents < summary.MinPriceCents {
				summary.MinPriceCents = row.PriceCents
			}
		}
		summary.Sellers = append(summary.Sellers, events.SellerStock{
			SellerID:   row.SellerID,
			Quantity:   row.Quantity,
			PriceCents: row.PriceCents,
		})
	}

	return h.bus.Publish(ctx, events.ExchangeInventory, events.KeyBookStockUpdated, summary)
}
