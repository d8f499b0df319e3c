// Package sellerstats consumes paid-order events and keeps seller
// listings and sold counters current. It evaluates each line item
// independently of the inventory handler's outcome for the same item.
package sellerstats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pageturn/fulfillment/internal/eventbus"
	"github.com/pageturn/fulfillment/internal/events"
	"github.com/pageturn/fulfillment/internal/idempotency"
	"github.com/pageturn/fulfillment/internal/sellerstats/ports"
)

// Queue is the durable queue name for this consumer.
const Queue = "sellerstats-service"

const markerPrefix = "sellerstats"

// Handler updates listing quantities and per-seller sales counters for
// each line item of a paid order.
type Handler struct {
	listings   ports.ListingRepository
	markers    idempotency.Marker
	bus        eventbus.Publisher
	logger     *slog.Logger
	retryLimit int
}

// NewHandler wires required dependencies.
func NewHandler(
	listings ports.ListingRepository,
	markers idempotency.Marker,
	bus eventbus.Publisher,
	logger *slog.Logger,
	retryLimit int,
) *Handler {
	if retryLimit <= 0 {
		retryLimit = 3
	}
	return &Handler{
		listings:   listings,
		markers:    markers,
		bus:        bus,
		logger:     logger,
		retryLimit: retryLimit,
	}
}

// HandleOrderPaid is the bus handler for order.paid events.
func (h *Handler) HandleOrderPaid(ctx context.Context, msg eventbus.Message) error {
	var event events.OrderPaid
	if err := msg.Decode(&event); err != nil {
		return eventbus.Discard(err)
	}
	if event.OrderID == "" || len(event.Items) == 0 {
		return eventbus.Discard(fmt.Errorf("order.paid event missing order id or items"))
	}

	// Group by seller so the seller-wide counter is bumped once per
	// seller even when an order has several of their items.
	sellerTotals := make(map[string]int)

	for _, item := range event.Items {
		recorded, err := h.recordItem(ctx, event.OrderID, item)
		if err != nil {
			return err
		}
		if recorded {
			sellerTotals[item.SellerID] += item.Quantity
		}
	}

	for sellerID, quantity := range sellerTotals {
		if err := h.addSellerSalesWithRetry(ctx, sellerID, quantity); err != nil {
			h.logger.Error("failed to update seller sales counter",
				"seller_id", sellerID, "error", err)
		}
	}

	return nil
}

// recordItem updates one listing. The returned bool reports whether this
// delivery performed the update successfully (false on replay or failure).
func (h *Handler) recordItem(ctx context.Context, orderID string, item events.OrderPaidItem) (bool, error) {
	claimed, err := h.markers.MarkOnce(ctx, markerPrefix+":"+item.OrderItemID)
	if err != nil {
		return false, fmt.Errorf("claim marker for item %s: %w", item.OrderItemID, err)
	}
	if !claimed {
		h.logger.Debug("skipping already processed item",
			"order_id", orderID, "order_item_id", item.OrderItemID)
		return false, nil
	}

	err = h.recordSaleWithRetry(ctx, item)
	switch {
	case errors.Is(err, ports.ErrNotFound):
		h.reportFailure(ctx, orderID, item, events.FailureListingNotFound, err.Error(), 0)
		return false, nil
	case err != nil:
		h.reportFailure(ctx, orderID, item, events.FailureStatsUpdate, err.Error(), h.retryLimit)
		return false, nil
	}

	fulfilled := events.ItemFulfilled{
		OrderID:     orderID,
		OrderItemID: item.OrderItemID,
		Source:      events.SourceSellerStats,
		FulfilledAt: time.Now().UTC(),
	}
	if err := h.bus.Publish(ctx, events.ExchangeOrders, events.KeyItemFulfilled, fulfilled); err != nil {
		return true, fmt.Errorf("publish item fulfilled: %w", err)
	}

	return true, nil
}

func (h *Handler) recordSaleWithRetry(ctx context.Context, item events.OrderPaidItem) error {
	var err error
	for attempt := 1; attempt <= h.retryLimit; attempt++ {
		err = h.listings.RecordSale(ctx, item.SellerID, item.BookID, item.Quantity)
		if err == nil || errors.Is(err, ports.ErrNotFound) {
			return err
		}
		h.logger.Warn("transient listing update failure",
			"order_item_id", item.OrderItemID, "attempt", attempt, "error", err)
	}
	return err
}

func (h *Handler) addSellerSalesWithRetry(ctx context.Context, sellerID string, quantity int) error {
	var err error
	for attempt := 1; attempt <= h.retryLimit; attempt++ {
		err = h.listings.AddSellerSales(ctx, sellerID, quantity)
		if err == nil {
			return nil
		}
	}
	return err
}

func (h *Handler) reportFailure(ctx context.Context, orderID string, item events.OrderPaidItem, failureType, detail string, attempts int) {
	failure := events.SellerStatsUpdateFailed{
		OrderID:       orderID,
		OrderItemID:   item.OrderItemID,
		SellerID:      item.SellerID,
		BookID:        item.BookID,
		Quantity:      item.Quantity,
		FailureType:   failureType,
		Error:         detail,
		FailedAt:      time.Now().UTC(),
		RetryAttempts: attempts,
	}
	if err := h.bus.Publish(ctx, events.ExchangeOrders, events.KeySellerStatsFailed, failure); err != nil {
		h.logger.Error("failed to publish stats failure",
			"order_id", orderID, "order_item_id", item.OrderItemID, "error", err)
	}
}
