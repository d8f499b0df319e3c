// Package idempotency provides processed-marker stores. A marker records
// that a logical operation (processing an order item, compensating an
// order) already happened, so redelivered events become no-ops.
package idempotency

import "context"

// Marker is a set of processed keys with at-least-once semantics on the
// write side: MarkOnce returns true exactly when this call claimed the
// key first. Replays observe false and skip their work.
type Marker interface {
	MarkOnce(ctx context.Context, key string) (bool, error)
}
