package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pageturn/fulfillment/internal/events"
	"github.com/pageturn/fulfillment/internal/orders/domain"
	"github.com/pageturn/fulfillment/internal/orders/ports"
)

// ErrPaymentDeclined is returned when the payment collaborator rejects
// the charge.
var ErrPaymentDeclined = errors.New("payment declined")

type ProcessPaymentCommand struct {
	OrderID     string
	AmountCents int64
}

func (c ProcessPaymentCommand) Validate() error {
	if strings.TrimSpace(c.OrderID) == "" {
		return errors.New("order_id is required")
	}
	if c.AmountCents <= 0 {
		return errors.New("amount_cents must be positive")
	}
	return nil
}

type ProcessPaymentHandler interface {
	Handle(ctx context.Context, cmd ProcessPaymentCommand) (*domain.Order, error)
}

// ProcessPaymentCommandHandler settles an order and publishes the
// order.paid event that triggers fulfillment.
type ProcessPaymentCommandHandler struct {
	repo     ports.OrderRepository
	payments ports.PaymentGateway
	events   ports.EventPublisher
}

func NewProcessPaymentCommandHandler(
	repo ports.OrderRepository,
	payments ports.PaymentGateway,
	events ports.EventPublisher,
) *ProcessPaymentCommandHandler {
	return &ProcessPaymentCommandHandler{
		repo:     repo,
		payments: payments,
		events:   events,
	}
}

func (h *ProcessPaymentCommandHandler) Handle(ctx context.Context, cmd ProcessPaymentCommand) (*domain.Order, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	order, err := h.repo.GetByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	// Validate the amount and the pending->paid edge before charging, so
	// a mismatch never reaches the payment collaborator.
	if err := order.ProcessPayment(cmd.AmountCents); err != nil {
		return nil, err
	}

	result, err := h.payments.ProcessPayment(ctx, order.ID, cmd.AmountCents)
	if err != nil {
		return nil, fmt.Errorf("process payment for order %s: %w", order.ID, err)
	}
	if !result.Success {
		return nil, fmt.Errorf("%w: %s", ErrPaymentDeclined, result.Message)
	}

	if err := h.repo.Update(ctx, *order); err != nil {
		return nil, err
	}

	if err := h.events.PublishOrderPaid(ctx, orderPaidEvent(order)); err != nil {
		return order, fmt.Errorf("order paid but failed to publish event: %w", err)
	}

	return order, nil
}

func orderPaidEvent(order *domain.Order) events.OrderPaid {
	items := make([]events.OrderPaidItem, len(order.Items))
	for i, item := range order.Items {
		items[i] = events.OrderPaidItem{
			OrderItemID:    item.ID,
			BookID:         item.BookID,
			SellerID:       item.SellerID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		}
	}
	return events.OrderPaid{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		TotalCents: order.TotalCents,
		PaidAt:     *order.PaidAt,
		Items:      items,
	}
}
