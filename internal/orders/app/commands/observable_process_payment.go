package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/pageturn/fulfillment/internal/orders/domain"
	"github.com/pageturn/fulfillment/internal/orders/metrics"
	"github.com/pageturn/fulfillment/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableProcessPaymentHandler struct {
	handler ProcessPaymentHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableProcessPaymentHandler(handler ProcessPaymentHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableProcessPaymentHandler {
	return &ObservableProcessPaymentHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableProcessPaymentHandler) Handle(ctx context.Context, cmd ProcessPaymentCommand) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "ProcessPaymentCommand.Handle")
	defer span.End()

	start := time.Now()
	var success bool
	defer func() {
		duration := time.Since(start).Seconds()
		o.metrics.RecordPaymentDuration(ctx, duration)
		o.metrics.RecordOrderPaid(ctx, success)
	}()

	o.logger.InfoContext(ctx, "processing payment",
		"order_id", cmd.OrderID,
		"amount_cents", cmd.AmountCents,
	)

	order, err := o.handler.Handle(ctx, cmd)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		o.logger.ErrorContext(ctx, "failed to process payment",
			"error", err,
			"order_id", cmd.OrderID,
		)
		return nil, err
	}

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", order.ID),
		attribute.Int64("order.total_cents", order.TotalCents),
		attribute.String("order.status", string(order.Status)),
	)

	o.logger.InfoContext(ctx, "payment processed successfully",
		"order_id", order.ID,
		"amount_cents", cmd.AmountCents,
	)

	success = true
	telemetry.SetSpanSuccess(span)

	return order, nil
}
