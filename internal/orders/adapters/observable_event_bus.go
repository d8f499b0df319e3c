package adapters

import (
	"context"
	"time"

	"github.com/pageturn/fulfillment/internal/eventbus"
	"github.com/pageturn/fulfillment/internal/events"
	"github.com/pageturn/fulfillment/internal/orders/ports"
	"github.com/pageturn/fulfillment/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableEventPublisher struct {
	publisher ports.EventPublisher
	metrics   *eventbus.Metrics
}

func NewObservableEventPublisher(publisher ports.EventPublisher, metrics *eventbus.Metrics) *ObservableEventPublisher {
	return &ObservableEventPublisher{
		publisher: publisher,
		metrics:   metrics,
	}
}

func (e *ObservableEventPublisher) PublishOrderPaid(ctx context.Context, event events.OrderPaid) error {
	ctx, span := telemetry.StartSpan(ctx, "EventPublisher.PublishOrderPaid")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", event.OrderID),
		attribute.String("event.type", events.KeyOrderPaid),
		attribute.Int("order.item_count", len(event.Items)),
	)

	start := time.Now()
	err := e.publisher.PublishOrderPaid(ctx, event)
	duration := time.Since(start).Seconds()

	e.metrics.RecordPublish(ctx, events.KeyOrderPaid, duration, err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

func (e *ObservableEventPublisher) PublishOrderCancelled(ctx context.Context, event events.OrderCancelled) error {
	ctx, span := telemetry.StartSpan(ctx, "EventPublisher.PublishOrderCancelled")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", event.OrderID),
		attribute.String("event.type", events.KeyOrderCancelled),
		attribute.String("order.reason", event.Reason),
	)

	start := time.Now()
	err := e.publisher.PublishOrderCancelled(ctx, event)
	duration := time.Since(start).Seconds()

	e.metrics.RecordPublish(ctx, events.KeyOrderCancelled, duration, err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

func (e *ObservableEventPublisher) PublishRefundRequested(ctx context.Context, event events.RefundRequested) error {
	ctx, span := telemetry.StartSpan(ctx, "EventPublisher.PublishRefundRequested")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", event.OrderID),
		attribute.String("event.type", events.KeyRefundRequested),
		attribute.String("order.reason", event.Reason),
	)

	start := time.Now()
	err := e.publisher.PublishRefundRequested(ctx, event)
	duration := time.Since(start).Seconds()

	e.metrics.RecordPublish(ctx, events.KeyRefundRequested, duration, err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}
