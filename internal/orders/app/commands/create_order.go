package commands

import (
	"context"
	"errors"
	"strings"

	"github.com/pageturn/fulfillment/internal/orders/domain"
	"github.com/pageturn/fulfillment/internal/orders/ports"
)

// ItemInput is one requested (book, seller) line of a new order.
type ItemInput struct {
	BookID         string
	SellerID       string
	Quantity       int
	UnitPriceCents int64
}

type CreateOrderCommand struct {
	CustomerID string
	Items      []ItemInput
}

func (c CreateOrderCommand) Validate() error {
	if strings.TrimSpace(c.CustomerID) == "" {
		return errors.New("customer_id is required")
	}
	if len(c.Items) == 0 {
		return errors.New("at least one item is required")
	}
	return nil
}

type CreateOrderHandler interface {
	Handle(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error)
}

type CreateOrderCommandHandler struct {
	repo ports.OrderRepository
}

func NewCreateOrderCommandHandler(repo ports.OrderRepository) *CreateOrderCommandHandler {
	return &CreateOrderCommandHandler{repo: repo}
}

// Handle creates a pending order. No event is published here: the saga
// starts at payment, not at checkout.
func (h *CreateOrderCommandHandler) Handle(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	items := make([]domain.OrderItem, len(cmd.Items))
	for i, item := range cmd.Items {
		items[i] = domain.OrderItem{
			BookID:         item.BookID,
			SellerID:       item.SellerID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		}
	}

	order, err := domain.NewOrder(cmd.CustomerID, items)
	if err != nil {
		return nil, err
	}

	if err := h.repo.Create(ctx, *order); err != nil {
		return nil, err
	}

	return order, nil
}
