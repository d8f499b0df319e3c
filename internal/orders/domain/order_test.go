package domain_test

import (
	"errors"
	"testing"

	"github.com/pageturn/fulfillment/internal/orders/domain"
)

func twoItems() []domain.OrderItem {
	return []domain.OrderItem{
		{BookID: "book-1", SellerID: "seller-a", Quantity: 2, UnitPriceCents: 1000},
		{BookID: "book-2", SellerID: "seller-b", Quantity: 1, UnitPriceCents: 500},
	}
}

func paidOrder(t *testing.T) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder("customer-1", twoItems())
	if err != nil {
		t.Fatalf("NewOrder() failed: %v", err)
	}
	if err := order.ProcessPayment(order.TotalCents); err != nil {
		t.Fatalf("ProcessPayment() failed: %v", err)
	}
	return order
}

func TestNewOrder(t *testing.T) {
	tests := []struct {
		name       string
		customerID string
		items      []domain.OrderItem
		wantErr    bool
	}{
		{"valid order", "customer-1", twoItems(), false},
		{"missing customer", "", twoItems(), true},
		{"whitespace customer", "   ", twoItems(), true},
		{"no items", "customer-1", nil, true},
		{
			"zero quantity",
			"customer-1",
			[]domain.OrderItem{{BookID: "b", SellerID: "s", Quantity: 0, UnitPriceCents: 100}},
			true,
		},
		{
			"negative price",
			"customer-1",
			[]domain.OrderItem{{BookID: "b", SellerID: "s", Quantity: 1, UnitPriceCents: -5}},
			true,
		},
		{
			"missing book id",
			"customer-1",
			[]domain.OrderItem{{SellerID: "s", Quantity: 1, UnitPriceCents: 100}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := domain.NewOrder(tt.customerID, tt.items)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewOrder() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if order.Status != domain.StatusPending {
				t.Errorf("new order status = %s, want %s", order.Status, domain.StatusPending)
			}
			if order.TotalCents != 2500 {
				t.Errorf("total = %d, want 2500", order.TotalCents)
			}
			for _, item := range order.Items {
				if item.Status != domain.ItemPending {
					t.Errorf("item status = %s, want %s", item.Status, domain.ItemPending)
				}
				if item.OrderID != order.ID {
					t.Errorf("item order id = %s, want %s", item.OrderID, order.ID)
				}
				if item.ID == "" {
					t.Error("item id was not generated")
				}
			}
		})
	}
}

func TestOrderTransitionGraph(t *testing.T) {
	all := []domain.OrderStatus{
		domain.StatusPending, domain.StatusPaid, domain.StatusShipped,
		domain.StatusDelivered, domain.StatusCancelled, domain.StatusRefunded,
	}

	legal := map[domain.OrderStatus]map[domain.OrderStatus]bool{
		domain.StatusPending:   {domain.StatusPaid: true, domain.StatusCancelled: true},
		domain.StatusPaid:      {domain.StatusShipped: true, domain.StatusCancelled: true, domain.StatusRefunded: true},
		domain.StatusShipped:   {domain.StatusDelivered: true, domain.StatusCancelled: true, domain.StatusRefunded: true},
		domain.StatusDelivered: {domain.StatusRefunded: true},
	}

	attempt := func(order *domain.Order, to domain.OrderStatus) error {
		switch to {
		case domain.StatusPaid:
			return order.ProcessPayment(order.TotalCents)
		case domain.StatusShipped:
			return order.MarkShipped()
		case domain.StatusDelivered:
			return order.MarkDelivered()
		case domain.StatusCancelled:
			return order.Cancel("test cancellation")
		case domain.StatusRefunded:
			return order.Refund("test refund")
		default:
			t.Fatalf("no transition targets %s", to)
			return nil
		}
	}

	for _, from := range all {
		for _, to := range all {
			if from == to {
				continue
			}
			t.Run(string(from)+" to "+string(to), func(t *testing.T) {
				order, err := domain.NewOrder("customer-1", twoItems())
				if err != nil {
					t.Fatalf("NewOrder() failed: %v", err)
				}
				order.Status = from

				err = attempt(order, to)

				if legal[from][to] {
					if err != nil {
						t.Fatalf("expected legal transition, got error: %v", err)
					}
					if order.Status != to {
						t.Errorf("status = %s, want %s", order.Status, to)
					}
					return
				}

				if err == nil {
					t.Fatal("expected error for illegal transition, got nil")
				}
				if order.Status != from {
					t.Errorf("illegal transition mutated status to %s, want unchanged %s", order.Status, from)
				}

				var transitionErr *domain.TransitionError
				if errors.As(err, &transitionErr) {
					if transitionErr.From != string(from) || transitionErr.To != string(to) {
						t.Errorf("transition error names edge %s->%s, want %s->%s",
							transitionErr.From, transitionErr.To, from, to)
					}
				}
			})
		}
	}
}

func TestProcessPaymentAmountValidation(t *testing.T) {
	tests := []struct {
		name   string
		amount func(total int64) int64
	}{
		{"amount below total", func(total int64) int64 { return total - 1 }},
		{"amount above total", func(total int64) int64 { return total + 1 }},
		{"zero amount", func(int64) int64 { return 0 }},
		{"negative amount", func(int64) int64 { return -100 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := domain.NewOrder("customer-1", twoItems())
			if err != nil {
				t.Fatalf("NewOrder() failed: %v", err)
			}

			err = order.ProcessPayment(tt.amount(order.TotalCents))
			if !errors.Is(err, domain.ErrAmountMismatch) {
				t.Fatalf("expected ErrAmountMismatch, got: %v", err)
			}
			if order.Status != domain.StatusPending {
				t.Errorf("status = %s, want unchanged %s", order.Status, domain.StatusPending)
			}
			if order.PaidAt != nil {
				t.Error("PaidAt set despite failed payment")
			}
		})
	}
}

func TestCancelRequiresReason(t *testing.T) {
	order := paidOrder(t)

	if err := order.Cancel("  "); !errors.Is(err, domain.ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got: %v", err)
	}
	if order.Status != domain.StatusPaid {
		t.Errorf("status = %s, want unchanged %s", order.Status, domain.StatusPaid)
	}

	if err := order.Cancel("inventory failure"); err != nil {
		t.Fatalf("Cancel() failed: %v", err)
	}
	if order.Reason != "inventory failure" {
		t.Errorf("reason = %q, want %q", order.Reason, "inventory failure")
	}
	if order.CancelledAt == nil {
		t.Error("CancelledAt not set")
	}
}

func TestRefundRequiresReason(t *testing.T) {
	order := paidOrder(t)

	if err := order.Refund(""); !errors.Is(err, domain.ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got: %v", err)
	}

	if err := order.Refund("damaged goods"); err != nil {
		t.Fatalf("Refund() failed: %v", err)
	}
	if order.RefundedAt == nil {
		t.Error("RefundedAt not set")
	}
}

func TestOrderIsTerminal(t *testing.T) {
	tests := []struct {
		name   string
		status domain.OrderStatus
		want   bool
	}{
		{"delivered is terminal", domain.StatusDelivered, true},
		{"cancelled is terminal", domain.StatusCancelled, true},
		{"refunded is terminal", domain.StatusRefunded, true},
		{"pending is not terminal", domain.StatusPending, false},
		{"paid is not terminal", domain.StatusPaid, false},
		{"shipped is not terminal", domain.StatusShipped, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := domain.Order{Status: tt.status}
			if got := order.IsTerminal(); got != tt.want {
				t.Errorf("Order.IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestItemTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    domain.ItemStatus
		apply   func(*domain.OrderItem) error
		want    domain.ItemStatus
		wantErr bool
	}{
		{"pending to processing", domain.ItemPending, (*domain.OrderItem).MarkProcessing, domain.ItemProcessing, false},
		{"processing to fulfilled", domain.ItemProcessing, (*domain.OrderItem).MarkFulfilled, domain.ItemFulfilled, false},
		{"processing to failed", domain.ItemProcessing, (*domain.OrderItem).MarkFailed, domain.ItemFailed, false},
		{"processing to compensated", domain.ItemProcessing, (*domain.OrderItem).MarkCompensated, domain.ItemCompensated, false},
		{"fulfilled to compensated", domain.ItemFulfilled, (*domain.OrderItem).MarkCompensated, domain.ItemCompensated, false},
		{"pending cannot skip to fulfilled", domain.ItemPending, (*domain.OrderItem).MarkFulfilled, domain.ItemPending, true},
		{"pending cannot skip to failed", domain.ItemPending, (*domain.OrderItem).MarkFailed, domain.ItemPending, true},
		{"fulfilled cannot regress to processing", domain.ItemFulfilled, (*domain.OrderItem).MarkProcessing, domain.ItemFulfilled, true},
		{"failed is terminal", domain.ItemFailed, (*domain.OrderItem).MarkCompensated, domain.ItemFailed, true},
		{"compensated is terminal", domain.ItemCompensated, (*domain.OrderItem).MarkFulfilled, domain.ItemCompensated, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := domain.OrderItem{Status: tt.from}
			err := tt.apply(&item)
			if (err != nil) != tt.wantErr {
				t.Fatalf("transition error = %v, wantErr %v", err, tt.wantErr)
			}
			if item.Status != tt.want {
				t.Errorf("status = %s, want %s", item.Status, tt.want)
			}
		})
	}
}
