// Package events defines the wire-level payloads exchanged between the
// fulfillment services. Every payload is JSON-encoded and delivered
// at least once, so all consumers treat duplicates as no-ops.
package events

import "time"

// Exchange names. Each logical event family gets its own direct exchange.
const (
	ExchangeOrders    = "orders"
	ExchangeInventory = "inventory"
)

// Routing keys on the orders exchange.
const (
	KeyOrderPaid            = "order.paid"
	KeyItemFulfilled        = "order.item.fulfilled"
	KeyInventoryFailed      = "inventory.reservation.failed"
	KeySellerStatsFailed    = "seller.stats.failed"
	KeyCompensationRequired = "order.compensation.required"
	KeyOrderCancelled       = "order.cancelled"
	KeyRefundRequested      = "order.refund.requested"
	KeyOrderRefunded        = "order.refunded"
)

// Routing keys on the inventory exchange.
const (
	KeyBookStockUpdated = "book.stock.updated"
)

// Failure types carried by failure events and compensation requests.
const (
	FailureInventoryNotFound = "inventory_not_found"
	FailureInsufficientStock = "insufficient_stock"
	FailureListingNotFound   = "listing_not_found"
	FailureStatsUpdate       = "stats_update_error"
	FailurePersistence       = "persistence_error"
)

// Outcome sources for per-item fulfillment signals.
const (
	SourceInventory   = "inventory"
	SourceSellerStats = "sellerstats"
)

// OrderPaid is published by the order service once payment settles. It is
// the trigger for both the inventory and seller statistics handlers.
type OrderPaid struct {
	OrderID    string         `json:"order_id"`
	CustomerID string         `json:"customer_id"`
	TotalCents int64          `json:"total_cents"`
	PaidAt     time.Time      `json:"paid_at"`
	Items      []OrderPaidItem `json:"items"`
}

type OrderPaidItem struct {
	OrderItemID    string `json:"order_item_id"`
	BookID         string `json:"book_id"`
	SellerID       string `json:"seller_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// ItemFulfilled signals that one handler finished one line item
// successfully. The compensation engine uses these to close its
// accumulator before the correlation window elapses.
type ItemFulfilled struct {
	OrderID     string    `json:"order_id"`
	OrderItemID string    `json:"order_item_id"`
	Source      string    `json:"source"`
	FulfilledAt time.Time `json:"fulfilled_at"`
}

// InventoryReservationFailed reports a single line item the inventory
// handler could not reserve. Sibling items are unaffected.
type InventoryReservationFailed struct {
	OrderID       string    `json:"order_id"`
	OrderItemID   string    `json:"order_item_id"`
	BookID        string    `json:"book_id"`
	SellerID      string    `json:"seller_id"`
	Quantity      int       `json:"quantity"`
	FailureType   string    `json:"failure_type"`
	Error         string    `json:"error"`
	FailedAt      time.Time `json:"failed_at"`
	RetryAttempts int       `json:"retry_attempts"`
}

// SellerStatsUpdateFailed reports a single line item the seller statistics
// handler could not account for. Evaluated independently of the inventory
// outcome for the same item.
type SellerStatsUpdateFailed struct {
	OrderID       string    `json:"order_id"`
	OrderItemID   string    `json:"order_item_id"`
	SellerID      string    `json:"seller_id"`
	BookID        string    `json:"book_id"`
	Quantity      int       `json:"quantity"`
	FailureType   string    `json:"failure_type"`
	Error         string    `json:"error"`
	FailedAt      time.Time `json:"failed_at"`
	RetryAttempts int       `json:"retry_attempts"`
}

// CompensationRequired is emitted at most once per order by the
// compensation engine and consumed exactly by the order reconciler.
type CompensationRequired struct {
	OrderID     string       `json:"order_id"`
	FailedItems []FailedItem `json:"failed_items"`
	RequestedAt time.Time    `json:"requested_at"`
	Reason      string       `json:"reason"`
}

type FailedItem struct {
	OrderItemID string `json:"order_item_id"`
	FailureType string `json:"failure_type"`
	Error       string `json:"error"`
}

// OrderCancelled announces the terminal state to notification and
// read-model consumers.
type OrderCancelled struct {
	OrderID     string               `json:"order_id"`
	CustomerID  string               `json:"customer_id"`
	CancelledAt time.Time            `json:"cancelled_at"`
	Reason      string               `json:"reason"`
	Items       []OrderCancelledItem `json:"items"`
}

type OrderCancelledItem struct {
	BookID   string `json:"book_id"`
	SellerID string `json:"seller_id"`
	Quantity int    `json:"quantity"`
}

// RefundRequested is published by the order service when a customer asks
// for their money back. The reconciler owns the actual rollback: stock
// restoration, the gateway refund, and the status flip.
type RefundRequested struct {
	OrderID     string    `json:"order_id"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// OrderRefunded announces that the gateway accepted the refund and the
// order reached its refunded terminal state.
type OrderRefunded struct {
	OrderID     string    `json:"order_id"`
	CustomerID  string    `json:"customer_id"`
	AmountCents int64     `json:"amount_cents"`
	RefundedAt  time.Time `json:"refunded_at"`
	Reason      string    `json:"reason"`
}

// BookStockUpdated is the per-book fan-in summary produced after each
// seller-level stock mutation, consumed by the search read model.
type BookStockUpdated struct {
	BookID           string        `json:"book_id"`
	TotalStock       int           `json:"total_stock"`
	AvailableSellers int           `json:"available_sellers"`
	MinPriceCents    int64         `json:"min_price_cents"`
	Sellers          []SellerStock `json:"sellers"`
}

type SellerStock struct {
	SellerID   string `json:"seller_id"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}
