package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func TestStartSpan(t *testing.T) {
	exp, cleanup := setupTracerProvider(t)
	defer cleanup()

	ctx, span := StartSpan(context.Background(), "reserve-stock")
	if TraceID(ctx) == "" || SpanID(ctx) == "" {
		t.Error("expected trace and span ids on the returned context")
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "reserve-stock" {
		t.Errorf("span name = %s, want reserve-stock", spans[0].Name)
	}
}

func TestSpanHelpers(t *testing.T) {
	t.Run("attributes and events land on the span", func(t *testing.T) {
		exp, cleanup := setupTracerProvider(t)
		defer cleanup()

		_, span := StartSpan(context.Background(), "op")
		AddSpanAttributes(span, attribute.String("order.id", "order-1"))
		AddSpanEvent(span, "stock.clamped", attribute.Int("removed", 2))
		span.End()

		recorded := exp.GetSpans()[0]

		foundAttr := false
		for _, attr := range recorded.Attributes {
			if attr.Key == "order.id" && attr.Value.AsString() == "order-1" {
				foundAttr = true
			}
		}
		if !foundAttr {
			t.Error("expected order.id attribute on span")
		}

		if len(recorded.Events) != 1 || recorded.Events[0].Name != "stock.clamped" {
			t.Errorf("expected stock.clamped event, got %+v", recorded.Events)
		}
	})

	t.Run("record error sets error status", func(t *testing.T) {
		exp, cleanup := setupTracerProvider(t)
		defer cleanup()

		_, span := StartSpan(context.Background(), "op")
		RecordSpanError(span, errors.New("insufficient stock"))
		span.End()

		recorded := exp.GetSpans()[0]
		if recorded.Status.Code != codes.Error {
			t.Errorf("status code = %v, want Error", recorded.Status.Code)
		}
		if recorded.Status.Description != "insufficient stock" {
			t.Errorf("status description = %q", recorded.Status.Description)
		}
	})

	t.Run("nil error leaves status unset", func(t *testing.T) {
		exp, cleanup := setupTracerProvider(t)
		defer cleanup()

		_, span := StartSpan(context.Background(), "op")
		RecordSpanError(span, nil)
		span.End()

		if got := exp.GetSpans()[0].Status.Code; got != codes.Unset {
			t.Errorf("status code = %v, want Unset", got)
		}
	})

	t.Run("set success marks ok", func(t *testing.T) {
		exp, cleanup := setupTracerProvider(t)
		defer cleanup()

		_, span := StartSpan(context.Background(), "op")
		SetSpanSuccess(span)
		span.End()

		if got := exp.GetSpans()[0].Status.Code; got != codes.Ok {
			t.Errorf("status code = %v, want Ok", got)
		}
	})

	t.Run("helpers tolerate nil span", func(t *testing.T) {
		AddSpanAttributes(nil, attribute.String("k", "v"))
		AddSpanEvent(nil, "event")
		RecordSpanError(nil, errors.New("boom"))
		SetSpanSuccess(nil)
	})
}

func TestTraceIDWithoutSpan(t *testing.T) {
	ctx := context.Background()
	if got := TraceID(ctx); got != "" {
		t.Errorf("TraceID() = %q, want empty", got)
	}
	if got := SpanID(ctx); got != "" {
		t.Errorf("SpanID() = %q, want empty", got)
	}
}
