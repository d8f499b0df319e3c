package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pageturn/fulfillment/internal/orders/adapters/memory"
	"github.com/pageturn/fulfillment/internal/orders/domain"
	"github.com/pageturn/fulfillment/internal/orders/ports"
)

func storedOrder() domain.Order {
	return domain.Order{
		ID:         "order-1",
		CustomerID: "customer-1",
		TotalCents: 2000,
		Status:     domain.StatusPaid,
		Items: []domain.OrderItem{
			{ID: "item-1", OrderID: "order-1", BookID: "book-1", SellerID: "seller-a", Quantity: 2, UnitPriceCents: 1000, Status: domain.ItemPending},
		},
	}
}

func TestUpdateItemStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("walks the item through its lifecycle", func(t *testing.T) {
		repo := memory.NewRepository()
		if err := repo.Create(ctx, storedOrder()); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}

		for _, status := range []domain.ItemStatus{domain.ItemProcessing, domain.ItemFulfilled, domain.ItemCompensated} {
			if err := repo.UpdateItemStatus(ctx, "order-1", "item-1", status); err != nil {
				t.Fatalf("UpdateItemStatus(%s) failed: %v", status, err)
			}
		}

		order, err := repo.GetByID(ctx, "order-1")
		if err != nil {
			t.Fatalf("GetByID() failed: %v", err)
		}
		if got := order.Item("item-1").Status; got != domain.ItemCompensated {
			t.Errorf("item status = %s, want %s", got, domain.ItemCompensated)
		}
	})

	t.Run("rejects an edge that skips a step", func(t *testing.T) {
		repo := memory.NewRepository()
		if err := repo.Create(ctx, storedOrder()); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}

		err := repo.UpdateItemStatus(ctx, "order-1", "item-1", domain.ItemFulfilled)
		var transitionErr *domain.TransitionError
		if !errors.As(err, &transitionErr) {
			t.Fatalf("expected TransitionError for pending -> fulfilled, got: %v", err)
		}

		order, _ := repo.GetByID(ctx, "order-1")
		if got := order.Item("item-1").Status; got != domain.ItemPending {
			t.Errorf("item status after rejected write = %s, want untouched %s", got, domain.ItemPending)
		}
	})

	t.Run("same-status write is a no-op", func(t *testing.T) {
		repo := memory.NewRepository()
		if err := repo.Create(ctx, storedOrder()); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}

		if err := repo.UpdateItemStatus(ctx, "order-1", "item-1", domain.ItemPending); err != nil {
			t.Errorf("same-status write failed: %v", err)
		}
	})

	t.Run("unknown order or item is not found", func(t *testing.T) {
		repo := memory.NewRepository()
		if err := repo.Create(ctx, storedOrder()); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}

		if err := repo.UpdateItemStatus(ctx, "order-2", "item-1", domain.ItemProcessing); !errors.Is(err, ports.ErrNotFound) {
			t.Errorf("unknown order: expected ErrNotFound, got %v", err)
		}
		if err := repo.UpdateItemStatus(ctx, "order-1", "item-2", domain.ItemProcessing); !errors.Is(err, ports.ErrNotFound) {
			t.Errorf("unknown item: expected ErrNotFound, got %v", err)
		}
	})
}
