package worker_test

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/pageturn/fulfillment/internal/compensation"
	busmemory "github.com/pageturn/fulfillment/internal/eventbus/memory"
	"github.com/pageturn/fulfillment/internal/events"
	idemmemory "github.com/pageturn/fulfillment/internal/idempotency/memory"
	"github.com/pageturn/fulfillment/internal/inventory"
	invmemory "github.com/pageturn/fulfillment/internal/inventory/adapters/memory"
	invdomain "github.com/pageturn/fulfillment/internal/inventory/domain"
	"github.com/pageturn/fulfillment/internal/orders/adapters"
	ordersmemory "github.com/pageturn/fulfillment/internal/orders/adapters/memory"
	"github.com/pageturn/fulfillment/internal/orders/domain"
	"github.com/pageturn/fulfillment/internal/reconciler"
	"github.com/pageturn/fulfillment/internal/sellerstats"
	statsmemory "github.com/pageturn/fulfillment/internal/sellerstats/adapters/memory"
	statsdomain "github.com/pageturn/fulfillment/internal/sellerstats/domain"
	"github.com/pageturn/fulfillment/internal/worker"
)

func orderPaidFrom(order *domain.Order, items []domain.OrderItem) events.OrderPaid {
	paidItems := make([]events.OrderPaidItem, len(items))
	for i, item := range items {
		paidItems[i] = events.OrderPaidItem{
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
		Items:      paidItems,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// Two-seller order where seller B has no stock row: the saga must fail
// only B's item, roll the order back, and restore A's reservation.
func TestSagaRollsBackPartialFailure(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	bus := busmemory.NewBus()
	bus.RequeueDelay = time.Millisecond
	defer bus.Close()

	warehouse := invmemory.NewRepository()
	warehouse.Seed(invdomain.WarehouseItem{BookID: "book-1", SellerID: "seller-a", Quantity: 5, PriceCents: 1000})

	listings := statsmemory.NewRepository()
	listings.Seed(statsdomain.Listing{SellerID: "seller-a", BookID: "book-1", Quantity: 5})
	listings.Seed(statsdomain.Listing{SellerID: "seller-b", BookID: "book-2", Quantity: 5})

	orders := ordersmemory.NewRepository()

	consumers := worker.Consumers{
		Inventory: inventory.NewReservationHandler(
			warehouse, orders, idemmemory.NewMarkerStore(), bus, logger, 3,
		),
		SellerStats: sellerstats.NewHandler(
			listings, idemmemory.NewMarkerStore(), bus, logger, 3,
		),
		Compensation: compensation.NewEngine(
			bus, idemmemory.NewMarkerStore(), logger, time.Minute,
		),
		Reconciler: reconciler.NewReconciler(
			orders, warehouse, ordersmemory.NewPaymentGateway(), bus, logger,
		),
	}
	defer consumers.Compensation.Close()

	if err := worker.Subscribe(ctx, bus, consumers, nil); err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	order, err := domain.NewOrder("customer-1", []domain.OrderItem{
		{BookID: "book-1", SellerID: "seller-a", Quantity: 2, UnitPriceCents: 1000},
		{BookID: "book-2", SellerID: "seller-b", Quantity: 1, UnitPriceCents: 500},
	})
	if err != nil {
		t.Fatalf("NewOrder() failed: %v", err)
	}
	if err := order.ProcessPayment(order.TotalCents); err != nil {
		t.Fatalf("ProcessPayment() failed: %v", err)
	}
	if err := orders.Create(ctx, *order); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	publisher := adapters.NewBusPublisher(bus)
	paid := order.Items
	event := orderPaidFrom(order, paid)
	if err := publisher.PublishOrderPaid(ctx, event); err != nil {
		t.Fatalf("PublishOrderPaid() failed: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		stored, err := orders.GetByID(ctx, order.ID)
		if err != nil {
			return false
		}
		return stored.Status == domain.StatusCancelled && bus.Idle()
	})

	stored, err := orders.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}

	if !strings.Contains(stored.Reason, "inventory_not_found") {
		t.Errorf("cancellation reason = %q, want mention of inventory_not_found", stored.Reason)
	}

	itemA := stored.Item(paid[0].ID)
	if itemA == nil || itemA.Status != domain.ItemCompensated {
		t.Errorf("seller A item = %+v, want status %s", itemA, domain.ItemCompensated)
	}
	itemB := stored.Item(paid[1].ID)
	if itemB == nil || itemB.Status != domain.ItemFailed {
		t.Errorf("seller B item = %+v, want status %s", itemB, domain.ItemFailed)
	}

	row, err := warehouse.Get(ctx, "book-1", "seller-a")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if row.Quantity != 5 {
		t.Errorf("seller A stock = %d, want restored 5", row.Quantity)
	}
}

// One item asks for more than the seller has: the clamp takes what is
// there, the item fails, and the partial take must be back on the shelf
// once the order is cancelled.
func TestSagaReturnsClampedTake(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	bus := busmemory.NewBus()
	bus.RequeueDelay = time.Millisecond
	defer bus.Close()

	warehouse := invmemory.NewRepository()
	warehouse.Seed(invdomain.WarehouseItem{BookID: "book-1", SellerID: "seller-a", Quantity: 1, PriceCents: 1000})

	listings := statsmemory.NewRepository()
	listings.Seed(statsdomain.Listing{SellerID: "seller-a", BookID: "book-1", Quantity: 5})

	orders := ordersmemory.NewRepository()

	consumers := worker.Consumers{
		Inventory: inventory.NewReservationHandler(
			warehouse, orders, idemmemory.NewMarkerStore(), bus, logger, 3,
		),
		SellerStats: sellerstats.NewHandler(
			listings, idemmemory.NewMarkerStore(), bus, logger, 3,
		),
		Compensation: compensation.NewEngine(
			bus, idemmemory.NewMarkerStore(), logger, time.Minute,
		),
		Reconciler: reconciler.NewReconciler(
			orders, warehouse, ordersmemory.NewPaymentGateway(), bus, logger,
		),
	}
	defer consumers.Compensation.Close()

	if err := worker.Subscribe(ctx, bus, consumers, nil); err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	order, err := domain.NewOrder("customer-1", []domain.OrderItem{
		{BookID: "book-1", SellerID: "seller-a", Quantity: 3, UnitPriceCents: 1000},
	})
	if err != nil {
		t.Fatalf("NewOrder() failed: %v", err)
	}
	if err := order.ProcessPayment(order.TotalCents); err != nil {
		t.Fatalf("ProcessPayment() failed: %v", err)
	}
	if err := orders.Create(ctx, *order); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	publisher := adapters.NewBusPublisher(bus)
	if err := publisher.PublishOrderPaid(ctx, orderPaidFrom(order, order.Items)); err != nil {
		t.Fatalf("PublishOrderPaid() failed: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		stored, err := orders.GetByID(ctx, order.ID)
		if err != nil {
			return false
		}
		return stored.Status == domain.StatusCancelled && bus.Idle()
	})

	stored, _ := orders.GetByID(ctx, order.ID)
	if !strings.Contains(stored.Reason, "insufficient_stock") {
		t.Errorf("cancellation reason = %q, want mention of insufficient_stock", stored.Reason)
	}
	if got := stored.Item(order.Items[0].ID); got == nil || got.Status != domain.ItemFailed {
		t.Errorf("item = %+v, want status %s", got, domain.ItemFailed)
	}

	row, err := warehouse.Get(ctx, "book-1", "seller-a")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if row.Quantity != 1 {
		t.Errorf("stock after cancelled order = %d, want the clamped take of 1 restored", row.Quantity)
	}
}

// All items succeed on both handlers: no rollback, order stays paid.
func TestSagaCompletesWithoutFailures(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	bus := busmemory.NewBus()
	bus.RequeueDelay = time.Millisecond
	defer bus.Close()

	warehouse := invmemory.NewRepository()
	warehouse.Seed(invdomain.WarehouseItem{BookID: "book-1", SellerID: "seller-a", Quantity: 5, PriceCents: 1000})

	listings := statsmemory.NewRepository()
	listings.Seed(statsdomain.Listing{SellerID: "seller-a", BookID: "book-1", Quantity: 5})

	orders := ordersmemory.NewRepository()

	engine := compensation.NewEngine(bus, idemmemory.NewMarkerStore(), logger, time.Minute)
	defer engine.Close()

	consumers := worker.Consumers{
		Inventory: inventory.NewReservationHandler(
			warehouse, orders, idemmemory.NewMarkerStore(), bus, logger, 3,
		),
		SellerStats: sellerstats.NewHandler(
			listings, idemmemory.NewMarkerStore(), bus, logger, 3,
		),
		Compensation: engine,
		Reconciler: reconciler.NewReconciler(
			orders, warehouse, ordersmemory.NewPaymentGateway(), bus, logger,
		),
	}

	if err := worker.Subscribe(ctx, bus, consumers, nil); err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	order, err := domain.NewOrder("customer-1", []domain.OrderItem{
		{BookID: "book-1", SellerID: "seller-a", Quantity: 2, UnitPriceCents: 1000},
	})
	if err != nil {
		t.Fatalf("NewOrder() failed: %v", err)
	}
	if err := order.ProcessPayment(order.TotalCents); err != nil {
		t.Fatalf("ProcessPayment() failed: %v", err)
	}
	if err := orders.Create(ctx, *order); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	publisher := adapters.NewBusPublisher(bus)
	if err := publisher.PublishOrderPaid(ctx, orderPaidFrom(order, order.Items)); err != nil {
		t.Fatalf("PublishOrderPaid() failed: %v", err)
	}

	// The engine closes its accumulator once all four outcomes arrive.
	waitFor(t, 5*time.Second, func() bool {
		return engine.Open() == 0 && bus.Idle()
	})

	stored, err := orders.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if stored.Status != domain.StatusPaid {
		t.Errorf("order status = %s, want %s", stored.Status, domain.StatusPaid)
	}

	row, _ := warehouse.Get(ctx, "book-1", "seller-a")
	if row.Quantity != 3 {
		t.Errorf("stock = %d, want 3", row.Quantity)
	}
	if got := listings.SellerSales("seller-a"); got != 2 {
		t.Errorf("seller sales = %d, want 2", got)
	}
}

// A refund request after successful fulfillment restores the reserved
// stock and lands the order on refunded.
func TestSagaRefundsFulfilledOrder(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	bus := busmemory.NewBus()
	bus.RequeueDelay = time.Millisecond
	defer bus.Close()

	warehouse := invmemory.NewRepository()
	warehouse.Seed(invdomain.WarehouseItem{BookID: "book-1", SellerID: "seller-a", Quantity: 5, PriceCents: 1000})

	listings := statsmemory.NewRepository()
	listings.Seed(statsdomain.Listing{SellerID: "seller-a", BookID: "book-1", Quantity: 5})

	orders := ordersmemory.NewRepository()

	engine := compensation.NewEngine(bus, idemmemory.NewMarkerStore(), logger, time.Minute)
	defer engine.Close()

	consumers := worker.Consumers{
		Inventory: inventory.NewReservationHandler(
			warehouse, orders, idemmemory.NewMarkerStore(), bus, logger, 3,
		),
		SellerStats: sellerstats.NewHandler(
			listings, idemmemory.NewMarkerStore(), bus, logger, 3,
		),
		Compensation: engine,
		Reconciler: reconciler.NewReconciler(
			orders, warehouse, ordersmemory.NewPaymentGateway(), bus, logger,
		),
	}

	if err := worker.Subscribe(ctx, bus, consumers, nil); err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	order, err := domain.NewOrder("customer-1", []domain.OrderItem{
		{BookID: "book-1", SellerID: "seller-a", Quantity: 2, UnitPriceCents: 1000},
	})
	if err != nil {
		t.Fatalf("NewOrder() failed: %v", err)
	}
	if err := order.ProcessPayment(order.TotalCents); err != nil {
		t.Fatalf("ProcessPayment() failed: %v", err)
	}
	if err := orders.Create(ctx, *order); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	publisher := adapters.NewBusPublisher(bus)
	if err := publisher.PublishOrderPaid(ctx, orderPaidFrom(order, order.Items)); err != nil {
		t.Fatalf("PublishOrderPaid() failed: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return engine.Open() == 0 && bus.Idle()
	})

	request := events.RefundRequested{
		OrderID:     order.ID,
		Reason:      "customer returned the books",
		RequestedAt: time.Now().UTC(),
	}
	if err := publisher.PublishRefundRequested(ctx, request); err != nil {
		t.Fatalf("PublishRefundRequested() failed: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		stored, err := orders.GetByID(ctx, order.ID)
		if err != nil {
			return false
		}
		return stored.Status == domain.StatusRefunded && bus.Idle()
	})

	stored, err := orders.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if stored.RefundedAt == nil {
		t.Error("RefundedAt not set")
	}
	if got := stored.Item(order.Items[0].ID); got == nil || got.Status != domain.ItemCompensated {
		t.Errorf("item = %+v, want status %s", got, domain.ItemCompensated)
	}

	row, _ := warehouse.Get(ctx, "book-1", "seller-a")
	if row.Quantity != 5 {
		t.Errorf("stock = %d, want restored 5", row.Quantity)
	}
}
