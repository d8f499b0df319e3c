package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderStatus captures the lifecycle of an order in the system.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
	StatusRefunded  OrderStatus = "refunded"
)

// orderTransitions is the full status graph. Any edge not listed here is
// illegal and rejected with a TransitionError naming the attempted edge.
var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:   {StatusPaid, StatusCancelled},
	StatusPaid:      {StatusShipped, StatusCancelled, StatusRefunded},
	StatusShipped:   {StatusDelivered, StatusCancelled, StatusRefunded},
	StatusDelivered: {StatusRefunded},
}

// TransitionError reports an illegal status transition.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot transition from %s to %s", e.Entity, e.From, e.To)
}

var (
	ErrAmountMismatch = errors.New("payment amount does not match order total")
	ErrReasonRequired = errors.New("a non-blank reason is required")
)

// Order is the aggregate root for a customer purchase. All status
// mutations go through the transition methods below; no other service
// writes order state directly.
type Order struct {
	ID          string      `json:"id"`
	CustomerID  string      `json:"customer_id"`
	Items       []OrderItem `json:"items"`
	TotalCents  int64       `json:"total_cents"`
	Status      OrderStatus `json:"status"`
	Reason      string      `json:"reason,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	PaidAt      *time.Time  `json:"paid_at,omitempty"`
	ShippedAt   *time.Time  `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time  `json:"delivered_at,omitempty"`
	CancelledAt *time.Time  `json:"cancelled_at,omitempty"`
	RefundedAt  *time.Time  `json:"refunded_at,omitempty"`
}

// NewOrder creates a pending order from line items. The total is computed
// once at creation and never mutated afterwards.
func NewOrder(customerID string, items []OrderItem) (*Order, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, errors.New("customer_id is required")
	}
	if len(items) == 0 {
		return nil, errors.New("order requires at least one item")
	}

	now := time.Now().UTC()
	orderID := uuid.NewString()

	var total int64
	built := make([]OrderItem, len(items))
	for i, item := range items {
		if err := item.validateInput(); err != nil {
			return nil, err
		}
		item.ID = uuid.NewString()
		item.OrderID = orderID
		item.Status = ItemPending
		built[i] = item
		total += int64(item.Quantity) * item.UnitPriceCents
	}

	return &Order{
		ID:         orderID,
		CustomerID: customerID,
		Items:      built,
		TotalCents: total,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Validate ensures the order adheres to business constraints.
func (o Order) Validate() error {
	if strings.TrimSpace(o.CustomerID) == "" {
		return errors.New("customer_id is required")
	}
	if len(o.Items) == 0 {
		return errors.New("order requires at least one item")
	}
	var total int64
	for _, item := range o.Items {
		if err := item.validateInput(); err != nil {
			return err
		}
		total += int64(item.Quantity) * item.UnitPriceCents
	}
	if total != o.TotalCents {
		return errors.New("total_cents must equal the sum of line items")
	}
	return nil
}

// IsTerminal indicates whether the order reached a final state.
func (o Order) IsTerminal() bool {
	switch o.Status {
	case StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	default:
		return false
	}
}

func (o *Order) transition(to OrderStatus) error {
	for _, allowed := range orderTransitions[o.Status] {
		if allowed == to {
			o.Status = to
			o.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return &TransitionError{Entity: "order", From: string(o.Status), To: string(to)}
}

// ProcessPayment settles the order. The amount must match the computed
// total exactly; a mismatch is a hard error, never silently accepted.
func (o *Order) ProcessPayment(amountCents int64) error {
	if amountCents <= 0 || amountCents != o.TotalCents {
		return fmt.Errorf("%w: got %d, want %d", ErrAmountMismatch, amountCents, o.TotalCents)
	}
	if err := o.transition(StatusPaid); err != nil {
		return err
	}
	now := time.Now().UTC()
	o.PaidAt = &now
	return nil
}

// MarkShipped records hand-off to the carrier.
func (o *Order) MarkShipped() error {
	if err := o.transition(StatusShipped); err != nil {
		return err
	}
	now := time.Now().UTC()
	o.ShippedAt = &now
	return nil
}

// MarkDelivered records delivery to the customer.
func (o *Order) MarkDelivered() error {
	if err := o.transition(StatusDelivered); err != nil {
		return err
	}
	now := time.Now().UTC()
	o.DeliveredAt = &now
	return nil
}

// Cancel moves the order to cancelled. Legal from pending (pre-payment),
// paid, and shipped.
func (o *Order) Cancel(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}
	if err := o.transition(StatusCancelled); err != nil {
		return err
	}
	now := time.Now().UTC()
	o.CancelledAt = &now
	o.Reason = reason
	return nil
}

// Refund moves the order to refunded. Callers must have issued the
// monetary refund through the payment collaborator before flipping the
// status.
func (o *Order) Refund(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}
	if err := o.transition(StatusRefunded); err != nil {
		return err
	}
	now := time.Now().UTC()
	o.RefundedAt = &now
	o.Reason = reason
	return nil
}

// Item returns the line item with the given id, or nil.
func (o *Order) Item(itemID string) *OrderItem {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i]
		}
	}
	return nil
}
