package commands_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pageturn/fulfillment/internal/events"
	"github.com/pageturn/fulfillment/internal/orders/app/commands"
	"github.com/pageturn/fulfillment/internal/orders/domain"
	"github.com/pageturn/fulfillment/internal/orders/ports"
)

type mockRepository struct {
	createFn  func(ctx context.Context, order domain.Order) error
	getByIDFn func(ctx context.Context, id string) (*domain.Order, error)
	updateFn  func(ctx context.Context, order domain.Order) error
}

func (m *mockRepository) Create(ctx context.Context, order domain.Order) error {
	if m.createFn != nil {
		return m.createFn(ctx, order)
	}
	return nil
}

func (m *mockRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, ports.ErrNotFound
}

func (m *mockRepository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	return nil, nil
}

func (m *mockRepository) Update(ctx context.Context, order domain.Order) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, order)
	}
	return nil
}

func (m *mockRepository) UpdateItemStatus(ctx context.Context, orderID, itemID string, status domain.ItemStatus) error {
	return nil
}

type mockPublisher struct {
	publishOrderPaidFn func(ctx context.Context, event events.OrderPaid) error
}

func (m *mockPublisher) PublishOrderPaid(ctx context.Context, event events.OrderPaid) error {
	if m.publishOrderPaidFn != nil {
		return m.publishOrderPaidFn(ctx, event)
	}
	return nil
}

func (m *mockPublisher) PublishOrderCancelled(ctx context.Context, event events.OrderCancelled) error {
	return nil
}

func (m *mockPublisher) PublishRefundRequested(ctx context.Context, event events.RefundRequested) error {
	return nil
}

func validItems() []commands.ItemInput {
	return []commands.ItemInput{
		{BookID: "book-1", SellerID: "seller-a", Quantity: 2, UnitPriceCents: 1000},
		{BookID: "book-2", SellerID: "seller-b", Quantity: 1, UnitPriceCents: 500},
	}
}

func TestCreateOrder(t *testing.T) {
	t.Run("creates pending order with computed total", func(t *testing.T) {
		repo := &mockRepository{}
		handler := commands.NewCreateOrderCommandHandler(repo)

		cmd := commands.CreateOrderCommand{
			CustomerID: "customer-1",
			Items:      validItems(),
		}

		order, err := handler.Handle(context.Background(), cmd)

		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if order == nil {
			t.Fatal("expected order to be returned, got nil")
		}

		if order.CustomerID != cmd.CustomerID {
			t.Errorf("expected customer id %s, got %s", cmd.CustomerID, order.CustomerID)
		}
		if order.TotalCents != 2500 {
			t.Errorf("expected total 2500, got %d", order.TotalCents)
		}
		if order.Status != domain.StatusPending {
			t.Errorf("expected status %s, got %s", domain.StatusPending, order.Status)
		}
		if order.ID == "" {
			t.Error("expected order ID to be generated")
		}
		for _, item := range order.Items {
			if item.ID == "" || item.OrderID != order.ID {
				t.Errorf("expected item bound to order, got %+v", item)
			}
			if item.Status != domain.ItemPending {
				t.Errorf("expected item status %s, got %s", domain.ItemPending, item.Status)
			}
		}
	})

	t.Run("returns validation error when customer id is empty", func(t *testing.T) {
		handler := commands.NewCreateOrderCommandHandler(&mockRepository{})

		order, err := handler.Handle(context.Background(), commands.CreateOrderCommand{
			Items: validItems(),
		})

		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if err.Error() != "customer_id is required" {
			t.Errorf("expected error %q, got %q", "customer_id is required", err.Error())
		}
		if order != nil {
			t.Errorf("expected nil order, got %+v", order)
		}
	})

	t.Run("returns validation error when there are no items", func(t *testing.T) {
		handler := commands.NewCreateOrderCommandHandler(&mockRepository{})

		order, err := handler.Handle(context.Background(), commands.CreateOrderCommand{
			CustomerID: "customer-1",
		})

		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if err.Error() != "at least one item is required" {
			t.Errorf("expected error %q, got %q", "at least one item is required", err.Error())
		}
		if order != nil {
			t.Errorf("expected nil order, got %+v", order)
		}
	})

	t.Run("returns validation error for non-positive quantity", func(t *testing.T) {
		handler := commands.NewCreateOrderCommandHandler(&mockRepository{})

		order, err := handler.Handle(context.Background(), commands.CreateOrderCommand{
			CustomerID: "customer-1",
			Items: []commands.ItemInput{
				{BookID: "book-1", SellerID: "seller-a", Quantity: 0, UnitPriceCents: 1000},
			},
		})

		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if order != nil {
			t.Errorf("expected nil order, got %+v", order)
		}
	})

	t.Run("returns error when repository fails", func(t *testing.T) {
		repoErr := errors.New("database connection failed")
		repo := &mockRepository{
			createFn: func(ctx context.Context, order domain.Order) error {
				return repoErr
			},
		}
		handler := commands.NewCreateOrderCommandHandler(repo)

		order, err := handler.Handle(context.Background(), commands.CreateOrderCommand{
			CustomerID: "customer-1",
			Items:      validItems(),
		})

		if !errors.Is(err, repoErr) {
			t.Errorf("expected error to wrap repository error, got: %v", err)
		}
		if order != nil {
			t.Errorf("expected nil order, got %+v", order)
		}
	})
}
