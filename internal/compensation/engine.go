// Package compensation correlates per-item failure events by order id
// and decides when an order requires rollback. It is the only component
// allowed to turn item-level failures into an order-level decision.
package compensation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pageturn/fulfillment/internal/eventbus"
	"github.com/pageturn/fulfillment/internal/events"
	"github.com/pageturn/fulfillment/internal/idempotency"
)

// Queue is the durable queue name for this consumer.
const Queue = "compensation-engine"

const markerPrefix = "compensation"

// DefaultWindow bounds how long the engine waits for sibling outcomes
// after the first failure for an order.
const DefaultWindow = 30 * time.Second

// DefaultRetryInterval spaces publish retries for a decided order while
// the broker is unavailable.
const DefaultRetryInterval = 5 * time.Second

// outcomesPerItem is how many outcome events one line item produces:
// one from the inventory handler and one from the seller stats handler.
const outcomesPerItem = 2

// FailureRecord is one item-level failure held in the working set while
// an order's saga resolves. It never outlives the accumulator.
type FailureRecord struct {
	OrderID     string
	OrderItemID string
	FailureType string
	Error       string
	Attempts    int
	FailedAt    time.Time
}

// accumulator tracks outcomes for one order. expected stays zero until
// the order.paid event arrives; failures for it may arrive first. After
// the decision the accumulator lingers until its CompensationRequired is
// on the bus; claimed remembers that the idempotency marker is held, so
// publish retries do not re-claim it.
type accumulator struct {
	expected int
	outcomes map[string]bool
	failures []FailureRecord
	timer    *time.Timer
	decided  bool
	claimed  bool
}

func (a *accumulator) counted() int { return len(a.outcomes) }

// Engine maintains per-order failure accumulators with a bounded
// observation window and emits at most one CompensationRequired per
// order.
type Engine struct {
	// RetryInterval spaces publish retries for a decided order while the
	// broker is unavailable. Mutate before the first delivery.
	RetryInterval time.Duration

	bus     eventbus.Publisher
	markers idempotency.Marker
	logger  *slog.Logger
	window  time.Duration

	mu     sync.Mutex
	orders map[string]*accumulator
}

// NewEngine wires required dependencies. A non-positive window falls
// back to DefaultWindow.
func NewEngine(
	bus eventbus.Publisher,
	markers idempotency.Marker,
	logger *slog.Logger,
	window time.Duration,
) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Engine{
		RetryInterval: DefaultRetryInterval,
		bus:           bus,
		markers:       markers,
		logger:        logger,
		window:        window,
		orders:        make(map[string]*accumulator),
	}
}

// Handle is the bus handler for every routing key this queue binds to.
func (e *Engine) Handle(ctx context.Context, msg eventbus.Message) error {
	switch msg.RoutingKey {
	case events.KeyOrderPaid:
		return e.handleOrderPaid(msg)
	case events.KeyItemFulfilled:
		return e.handleItemFulfilled(ctx, msg)
	case events.KeyInventoryFailed:
		return e.handleInventoryFailed(ctx, msg)
	case events.KeySellerStatsFailed:
		return e.handleSellerStatsFailed(ctx, msg)
	default:
		return eventbus.Discard(fmt.Errorf("unexpected routing key %q", msg.RoutingKey))
	}
}

func (e *Engine) handleOrderPaid(msg eventbus.Message) error {
	var event events.OrderPaid
	if err := msg.Decode(&event); err != nil {
		return eventbus.Discard(err)
	}
	if event.OrderID == "" || len(event.Items) == 0 {
		return eventbus.Discard(fmt.Errorf("order.paid event missing order id or items"))
	}

	e.mu.Lock()
	acc := e.accumulatorLocked(event.OrderID)
	if acc.decided {
		e.mu.Unlock()
		return nil
	}
	acc.expected = len(event.Items) * outcomesPerItem
	failures, decided := e.maybeDecideLocked(event.OrderID, acc)
	if !decided {
		e.armTimerLocked(event.OrderID, acc)
	}
	e.mu.Unlock()

	if decided && len(failures) > 0 {
		e.emit(event.OrderID, failures)
	}
	return nil
}

func (e *Engine) handleItemFulfilled(_ context.Context, msg eventbus.Message) error {
	var event events.ItemFulfilled
	if err := msg.Decode(&event); err != nil {
		return eventbus.Discard(err)
	}
	if event.OrderID == "" || event.OrderItemID == "" {
		return eventbus.Discard(fmt.Errorf("item.fulfilled event missing identifiers"))
	}

	e.recordOutcome(event.OrderID, event.Source+":"+event.OrderItemID, nil)
	return nil
}

func (e *Engine) handleInventoryFailed(_ context.Context, msg eventbus.Message) error {
	var event events.InventoryReservationFailed
	if err := msg.Decode(&event); err != nil {
		return eventbus.Discard(err)
	}
	if event.OrderID == "" || event.OrderItemID == "" {
		return eventbus.Discard(fmt.Errorf("reservation failure missing identifiers"))
	}

	e.recordOutcome(event.OrderID, events.SourceInventory+":"+event.OrderItemID, &FailureRecord{
		OrderID:     event.OrderID,
		OrderItemID: event.OrderItemID,
		FailureType: event.FailureType,
		Error:       event.Error,
		Attempts:    event.RetryAttempts,
		FailedAt:    event.FailedAt,
	})
	return nil
}

func (e *Engine) handleSellerStatsFailed(_ context.Context, msg eventbus.Message) error {
	var event events.SellerStatsUpdateFailed
	if err := msg.Decode(&event); err != nil {
		return eventbus.Discard(err)
	}
	if event.OrderID == "" || event.OrderItemID == "" {
		return eventbus.Discard(fmt.Errorf("stats failure missing identifiers"))
	}

	e.recordOutcome(event.OrderID, events.SourceSellerStats+":"+event.OrderItemID, &FailureRecord{
		OrderID:     event.OrderID,
		OrderItemID: event.OrderItemID,
		FailureType: event.FailureType,
		Error:       event.Error,
		Attempts:    event.RetryAttempts,
		FailedAt:    event.FailedAt,
	})
	return nil
}

// recordOutcome notes one (handler, item) outcome. Redelivered events
// carry the same key and are absorbed here.
func (e *Engine) recordOutcome(orderID, key string, failure *FailureRecord) {
	e.mu.Lock()

	acc := e.accumulatorLocked(orderID)
	if acc.decided || acc.outcomes[key] {
		e.mu.Unlock()
		return
	}
	acc.outcomes[key] = true

	if failure != nil {
		acc.failures = append(acc.failures, *failure)
	}

	failures, decided := e.maybeDecideLocked(orderID, acc)
	if !decided {
		e.armTimerLocked(orderID, acc)
	}
	e.mu.Unlock()

	if decided && len(failures) > 0 {
		e.emit(orderID, failures)
	}
}

func (e *Engine) accumulatorLocked(orderID string) *accumulator {
	acc, ok := e.orders[orderID]
	if !ok {
		acc = &accumulator{outcomes: make(map[string]bool)}
		e.orders[orderID] = acc
		// Every accumulator carries a live window from birth. Without it
		// a stray redelivery (e.g. order.paid after the decision) would
		// sit in the working set forever waiting for outcomes that never
		// come.
		e.armTimerLocked(orderID, acc)
	}
	return acc
}

// armTimerLocked starts or extends the observation window. Each new
// outcome pushes the deadline out so slow siblings are not falsely
// rolled up mid-order.
func (e *Engine) armTimerLocked(orderID string, acc *accumulator) {
	if acc.timer != nil {
		acc.timer.Reset(e.window)
		return
	}
	acc.timer = time.AfterFunc(e.window, func() {
		e.expire(orderID)
	})
}

func (e *Engine) expire(orderID string) {
	e.mu.Lock()
	acc, ok := e.orders[orderID]
	if !ok || acc.decided {
		e.mu.Unlock()
		return
	}
	e.logger.Warn("correlation window elapsed before all outcomes arrived",
		"order_id", orderID, "counted", acc.counted(), "expected", acc.expected)
	failures := e.decideLocked(orderID, acc)
	e.mu.Unlock()

	if len(failures) > 0 {
		e.emit(orderID, failures)
	}
}

// maybeDecideLocked closes the accumulator early when every expected
// outcome has arrived. The returned failures must be emitted by the
// caller after releasing the lock.
func (e *Engine) maybeDecideLocked(orderID string, acc *accumulator) ([]FailureRecord, bool) {
	if acc.decided || acc.expected == 0 || acc.counted() < acc.expected {
		return nil, false
	}
	return e.decideLocked(orderID, acc), true
}

func (e *Engine) decideLocked(orderID string, acc *accumulator) []FailureRecord {
	acc.decided = true
	if acc.timer != nil {
		acc.timer.Stop()
		acc.timer = nil
	}

	if len(acc.failures) == 0 {
		delete(e.orders, orderID)
		e.logger.Info("saga completed without failures", "order_id", orderID)
		return nil
	}

	// The accumulator stays in the working set until its request is on
	// the bus; emit retries from it when the broker is down.
	return acc.failures
}

// emit publishes exactly one CompensationRequired for the order. The
// marker makes redecided replays (e.g. after a worker restart) no-ops. A
// marker or publish failure keeps the decided accumulator and retries,
// so a broker outage delays the request instead of losing it.
func (e *Engine) emit(orderID string, failures []FailureRecord) {
	ctx := context.Background()

	e.mu.Lock()
	acc, ok := e.orders[orderID]
	if !ok {
		e.mu.Unlock()
		return
	}
	claimed := acc.claimed
	e.mu.Unlock()

	if !claimed {
		got, err := e.markers.MarkOnce(ctx, markerPrefix+":"+orderID)
		if err != nil {
			e.logger.Error("failed to claim compensation marker",
				"order_id", orderID, "error", err)
			e.retryEmitLater(orderID)
			return
		}
		if !got {
			e.logger.Debug("compensation already requested", "order_id", orderID)
			e.forget(orderID)
			return
		}
		e.mu.Lock()
		acc.claimed = true
		e.mu.Unlock()
	}

	failedItems := make([]events.FailedItem, 0, len(failures))
	for _, f := range failures {
		failedItems = append(failedItems, events.FailedItem{
			OrderItemID: f.OrderItemID,
			FailureType: f.FailureType,
			Error:       f.Error,
		})
	}

	request := events.CompensationRequired{
		OrderID:     orderID,
		FailedItems: failedItems,
		RequestedAt: time.Now().UTC(),
		Reason:      aggregateReason(failures),
	}

	if err := e.bus.Publish(ctx, events.ExchangeOrders, events.KeyCompensationRequired, request); err != nil {
		e.logger.Error("failed to publish compensation request",
			"order_id", orderID, "error", err)
		e.retryEmitLater(orderID)
		return
	}

	e.forget(orderID)
	e.logger.Info("compensation requested",
		"order_id", orderID, "failed_items", len(failedItems), "reason", request.Reason)
}

// retryEmitLater re-arms the decided accumulator's timer as a publish
// retry.
func (e *Engine) retryEmitLater(orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	acc, ok := e.orders[orderID]
	if !ok || !acc.decided {
		return
	}
	if acc.timer != nil {
		acc.timer.Stop()
	}
	acc.timer = time.AfterFunc(e.RetryInterval, func() {
		e.mu.Lock()
		acc, ok := e.orders[orderID]
		if !ok || !acc.decided {
			e.mu.Unlock()
			return
		}
		acc.timer = nil
		failures := acc.failures
		e.mu.Unlock()

		e.emit(orderID, failures)
	})
}

func (e *Engine) forget(orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if acc, ok := e.orders[orderID]; ok && acc.timer != nil {
		acc.timer.Stop()
	}
	delete(e.orders, orderID)
}

// aggregateReason names the distinct failure types observed, in stable
// order, for the customer-facing cancellation reason.
func aggregateReason(failures []FailureRecord) string {
	seen := make(map[string]bool)
	var types []string
	for _, f := range failures {
		if !seen[f.FailureType] {
			seen[f.FailureType] = true
			types = append(types, f.FailureType)
		}
	}
	sort.Strings(types)
	return fmt.Sprintf("order fulfillment failed: %s", strings.Join(types, ", "))
}

// Open reports how many accumulators are currently tracking orders.
func (e *Engine) Open() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.orders)
}

// Close stops every pending window timer without deciding.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, acc := range e.orders {
		if acc.timer != nil {
			acc.timer.Stop()
			acc.timer = nil
		}
	}
}
