package domain

import (
	"errors"
	"strings"
)

// ItemStatus captures the lifecycle of a single line item.
type ItemStatus string

const (
	ItemPending     ItemStatus = "pending"
	ItemProcessing  ItemStatus = "processing"
	ItemFulfilled   ItemStatus = "fulfilled"
	ItemFailed      ItemStatus = "failed"
	ItemCompensated ItemStatus = "compensated"
)

// itemTransitions mirrors the order graph at item granularity. The chain
// only moves forward; compensated is reachable from processing (rollback
// caught the item mid-flight) and from fulfilled (inventory was restored).
var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemPending:    {ItemProcessing},
	ItemProcessing: {ItemFulfilled, ItemFailed, ItemCompensated},
	ItemFulfilled:  {ItemCompensated},
}

// OrderItem is one (book, seller) line of an order.
type OrderItem struct {
	ID             string     `json:"id"`
	OrderID        string     `json:"order_id"`
	BookID         string     `json:"book_id"`
	SellerID       string     `json:"seller_id"`
	Quantity       int        `json:"quantity"`
	UnitPriceCents int64      `json:"unit_price_cents"`
	Status         ItemStatus `json:"status"`
}

func (i OrderItem) validateInput() error {
	if strings.TrimSpace(i.BookID) == "" {
		return errors.New("book_id is required")
	}
	if strings.TrimSpace(i.SellerID) == "" {
		return errors.New("seller_id is required")
	}
	if i.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	if i.UnitPriceCents <= 0 {
		return errors.New("unit_price_cents must be positive")
	}
	return nil
}

// ValidItemTransition reports whether the item status graph contains the
// from -> to edge. Repositories use it to reject raw status writes that
// would skip a step.
func ValidItemTransition(from, to ItemStatus) bool {
	for _, allowed := range itemTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (i *OrderItem) transition(to ItemStatus) error {
	if !ValidItemTransition(i.Status, to) {
		return &TransitionError{Entity: "order item", From: string(i.Status), To: string(to)}
	}
	i.Status = to
	return nil
}

// MarkProcessing records that a downstream handler picked the item up.
// Skipping this step fails loudly, which catches out-of-order delivery.
func (i *OrderItem) MarkProcessing() error {
	return i.transition(ItemProcessing)
}

// MarkFulfilled records a successful reservation for the item.
func (i *OrderItem) MarkFulfilled() error {
	return i.transition(ItemFulfilled)
}

// MarkFailed records a terminal per-item failure.
func (i *OrderItem) MarkFailed() error {
	return i.transition(ItemFailed)
}

// MarkCompensated records that rollback undid (or preempted) the item.
func (i *OrderItem) MarkCompensated() error {
	return i.transition(ItemCompensated)
}
