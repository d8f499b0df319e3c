// Package memory provides an in-process event bus useful for local
// development and tests. Delivery semantics mirror the broker-backed
// implementation: per-queue ordering, at-least-once delivery, and
// requeue on negative acknowledgment.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pageturn/fulfillment/internal/eventbus"
)

// Bus routes published events to bound queues, each drained by its own
// dispatcher goroutine.
type Bus struct {
	mu     sync.Mutex
	queues map[string]*queue
	wg     sync.WaitGroup
	closed bool

	// RequeueDelay spaces redeliveries of nacked messages so a failing
	// handler does not spin. Tests may lower it.
	RequeueDelay time.Duration
}

type queue struct {
	name     string
	exchange string
	keys     map[string]struct{}
	handler  eventbus.Handler

	mu      sync.Mutex
	cond    *sync.Cond
	pending []eventbus.Message
	running bool
	closed  bool

	inflight sync.WaitGroup
}

// NewBus creates an empty bus with no bindings.
func NewBus() *Bus {
	return &Bus{
		queues:       make(map[string]*queue),
		RequeueDelay: 50 * time.Millisecond,
	}
}

// Publish encodes the payload and enqueues it on every queue bound to
// the (exchange, routingKey) pair. Fire-and-forget: handler outcomes do
// not propagate back to the publisher.
func (b *Bus) Publish(_ context.Context, exchange, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", routingKey, err)
	}

	msg := eventbus.Message{Exchange: exchange, RoutingKey: routingKey, Body: body}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("publish %s: bus is closed", routingKey)
	}

	for _, q := range b.queues {
		if q.exchange != exchange {
			continue
		}
		if _, ok := q.keys[routingKey]; !ok {
			continue
		}
		q.enqueue(msg)
	}
	return nil
}

// Subscribe registers a queue and starts its dispatcher. The handler is
// invoked sequentially per queue; separate queues run concurrently.
func (b *Bus) Subscribe(ctx context.Context, name, exchange string, routingKeys []string, handler eventbus.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("subscribe %s: bus is closed", name)
	}
	if _, exists := b.queues[name]; exists {
		return fmt.Errorf("subscribe %s: queue already bound", name)
	}

	q := &queue{
		name:     name,
		exchange: exchange,
		keys:     make(map[string]struct{}, len(routingKeys)),
		handler:  handler,
	}
	q.cond = sync.NewCond(&q.mu)
	for _, key := range routingKeys {
		q.keys[key] = struct{}{}
	}
	b.queues[name] = q

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.dispatch(ctx, q)
	}()

	return nil
}

// Close stops all dispatchers and waits for in-flight handlers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	queues := make([]*queue, 0, len(b.queues))
	for _, q := range b.queues {
		queues = append(queues, q)
	}
	b.mu.Unlock()

	for _, q := range queues {
		q.close()
	}
	b.wg.Wait()
	return nil
}

// Idle reports whether every queue is drained with no handler running.
// Intended for tests that need to observe a settled pipeline.
func (b *Bus) Idle() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range b.queues {
		q.mu.Lock()
		busy := len(q.pending) > 0 || q.running
		q.mu.Unlock()
		if busy {
			return false
		}
	}
	return true
}

func (b *Bus) dispatch(ctx context.Context, q *queue) {
	for {
		msg, ok := q.next()
		if !ok {
			return
		}

		q.inflight.Add(1)
		err := q.handler(ctx, msg)

		switch {
		case err == nil:
			// acknowledged
		case eventbus.IsDiscard(err):
			slog.Warn("discarding unprocessable message",
				"queue", q.name, "routing_key", msg.RoutingKey, "error", err)
		default:
			slog.Warn("requeueing message after handler failure",
				"queue", q.name, "routing_key", msg.RoutingKey, "error", err)
			time.Sleep(b.RequeueDelay)
			q.enqueue(msg)
		}

		q.settle()
		q.inflight.Done()
	}
}

func (q *queue) enqueue(msg eventbus.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.pending = append(q.pending, msg)
	q.cond.Signal()
}

func (q *queue) next() (eventbus.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.pending) == 0 {
		return eventbus.Message{}, false
	}
	msg := q.pending[0]
	q.pending = q.pending[1:]
	q.running = true
	return msg, true
}

func (q *queue) settle() {
	q.mu.Lock()
	q.running = false
	q.mu.Unlock()
}

func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	q.inflight.Wait()
}
