package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	ordersCreatedTotal    metric.Int64Counter
	orderCreationDuration metric.Float64Histogram
	ordersPaidTotal       metric.Int64Counter
	paymentDuration       metric.Float64Histogram
	ordersCancelledTotal  metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.ordersCreatedTotal, err = meter.Int64Counter(
		"orders_created_total",
		metric.WithDescription("Total number of orders created"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create orders_created_total counter: %w", err)
	}

	m.orderCreationDuration, err = meter.Float64Histogram(
		"order_creation_duration_seconds",
		metric.WithDescription("Duration of order creation operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_creation_duration histogram: %w", err)
	}

	m.ordersPaidTotal, err = meter.Int64Counter(
		"orders_paid_total",
		metric.WithDescription("Total number of orders settled"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create orders_paid_total counter: %w", err)
	}

	m.paymentDuration, err = meter.Float64Histogram(
		"payment_processing_duration_seconds",
		metric.WithDescription("Duration of payment processing operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create payment_processing_duration histogram: %w", err)
	}

	m.ordersCancelledTotal, err = meter.Int64Counter(
		"orders_cancelled_total",
		metric.WithDescription("Total number of orders cancelled, by origin"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create orders_cancelled_total counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordOrderCreated(ctx context.Context, success bool) {
	m.ordersCreatedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", statusLabel(success)),
	))
}

func (m *Metrics) RecordOrderCreationDuration(ctx context.Context, durationSeconds float64) {
	m.orderCreationDuration.Record(ctx, durationSeconds)
}

func (m *Metrics) RecordOrderPaid(ctx context.Context, success bool) {
	m.ordersPaidTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", statusLabel(success)),
	))
}

func (m *Metrics) RecordPaymentDuration(ctx context.Context, durationSeconds float64) {
	m.paymentDuration.Record(ctx, durationSeconds)
}

// RecordOrderCancelled counts a cancellation. Origin is "customer" for
// API-driven cancellations and "compensation" for saga rollbacks.
func (m *Metrics) RecordOrderCancelled(ctx context.Context, origin string) {
	m.ordersCancelledTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("origin", origin),
	))
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
