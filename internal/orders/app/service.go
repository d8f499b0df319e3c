package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/pageturn/fulfillment/internal/events"
	"github.com/pageturn/fulfillment/internal/orders/app/commands"
	"github.com/pageturn/fulfillment/internal/orders/domain"
	"github.com/pageturn/fulfillment/internal/orders/metrics"
	"github.com/pageturn/fulfillment/internal/orders/ports"
)

// Service bundles use cases for handling orders via the API.
type Service struct {
	repo           ports.OrderRepository
	events         ports.EventPublisher
	idemStore      ports.IdempotencyStore
	logger         *slog.Logger
	metrics        *metrics.Metrics
	createHandler  commands.CreateOrderHandler
	paymentHandler commands.ProcessPaymentHandler
}

// NewService wires required dependencies.
func NewService(
	repo ports.OrderRepository,
	events ports.EventPublisher,
	payments ports.PaymentGateway,
	idem ports.IdempotencyStore,
	logger *slog.Logger,
	metrics *metrics.Metrics,
) *Service {
	createHandler := commands.NewObservableCreateOrderHandler(
		commands.NewCreateOrderCommandHandler(repo), logger, metrics,
	)
	paymentHandler := commands.NewObservableProcessPaymentHandler(
		commands.NewProcessPaymentCommandHandler(repo, payments, events), logger, metrics,
	)

	return &Service{
		repo:           repo,
		events:         events,
		idemStore:      idem,
		logger:         logger,
		metrics:        metrics,
		createHandler:  createHandler,
		paymentHandler: paymentHandler,
	}
}

// CreateOrderInput captures payload for creating an order.
type CreateOrderInput struct {
	CustomerID string           `json:"customer_id"`
	Items      []OrderItemInput `json:"items"`
}

// OrderItemInput is one requested line item.
type OrderItemInput struct {
	BookID         string `json:"book_id"`
	SellerID       string `json:"seller_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// CreateOrder creates a pending order from the checkout payload.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (*domain.Order, error) {
	items := make([]commands.ItemInput, len(input.Items))
	for i, item := range input.Items {
		items[i] = commands.ItemInput{
			BookID:         item.BookID,
			SellerID:       item.SellerID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		}
	}
	return s.createHandler.Handle(ctx, commands.CreateOrderCommand{
		CustomerID: input.CustomerID,
		Items:      items,
	})
}

// ProcessPayment settles a pending order and starts fulfillment.
func (s *Service) ProcessPayment(ctx context.Context, id string, amountCents int64) (*domain.Order, error) {
	return s.paymentHandler.Handle(ctx, commands.ProcessPaymentCommand{
		OrderID:     id,
		AmountCents: amountCents,
	})
}

// GetOrder retrieves an order by ID.
func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.repo.GetByID(ctx, id)
}

// ListOrders returns orders using a filter.
func (s *Service) ListOrders(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	return s.repo.List(ctx, filter)
}

// CancelOrder cancels an order on the customer's request. The status
// graph rejects cancellation of delivered or already terminal orders.
func (s *Service) CancelOrder(ctx context.Context, id, reason string) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := order.Cancel(reason); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, *order); err != nil {
		return nil, err
	}

	s.metrics.RecordOrderCancelled(ctx, "customer")
	s.publishCancelled(ctx, order)

	return order, nil
}

// RefundOrder accepts a customer refund request. The flip to refunded
// happens asynchronously: the reconciler restores fulfilled stock and
// settles the refund with the payment gateway before touching status, so
// this only validates the request and publishes it.
func (s *Service) RefundOrder(ctx context.Context, id, reason string) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Try the transition on a copy to reject unpaid or terminal orders
	// up front without mutating anything.
	draft := *order
	if err := draft.Refund(reason); err != nil {
		return nil, err
	}

	request := events.RefundRequested{
		OrderID:     order.ID,
		Reason:      reason,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.events.PublishRefundRequested(ctx, request); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "refund requested", "order_id", order.ID, "reason", reason)
	return order, nil
}

// ShipOrder records carrier hand-off.
func (s *Service) ShipOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.transition(ctx, id, (*domain.Order).MarkShipped)
}

// DeliverOrder records delivery to the customer.
func (s *Service) DeliverOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.transition(ctx, id, (*domain.Order).MarkDelivered)
}

func (s *Service) transition(ctx context.Context, id string, move func(*domain.Order) error) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := move(order); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, *order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) publishCancelled(ctx context.Context, order *domain.Order) {
	items := make([]events.OrderCancelledItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, events.OrderCancelledItem{
			BookID:   item.BookID,
			SellerID: item.SellerID,
			Quantity: item.Quantity,
		})
	}

	cancelled := events.OrderCancelled{
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		CancelledAt: time.Now().UTC(),
		Reason:      order.Reason,
		Items:       items,
	}
	if order.CancelledAt != nil {
		cancelled.CancelledAt = *order.CancelledAt
	}

	if err := s.events.PublishOrderCancelled(ctx, cancelled); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order cancelled",
			"order_id", order.ID, "error", err)
	}
}

// SaveIdempotentResponse writes response details for a key.
func (s *Service) SaveIdempotentResponse(ctx context.Context, key string, response ports.StoredResponse) error {
	return s.idemStore.Save(ctx, key, response)
}

// GetIdempotentResponse retrieves previously stored response data.
func (s *Service) GetIdempotentResponse(ctx context.Context, key string) (*ports.StoredResponse, error) {
	return s.idemStore.Get(ctx, key)
}
