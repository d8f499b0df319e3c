// Package eventbus defines the messaging contract shared by every
// fulfillment service: durable named queues bound to direct exchanges,
// at-least-once delivery, manual acknowledgment, and requeue on failure.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Message is a delivered event. Body is the JSON-encoded payload.
type Message struct {
	Exchange   string
	RoutingKey string
	Body       []byte
}

// Decode unmarshals the message body into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Body, v); err != nil {
		return fmt.Errorf("decode %s message: %w", m.RoutingKey, err)
	}
	return nil
}

// Handler processes a delivered message. Returning nil acknowledges the
// message. Returning an error wrapping ErrDiscard acknowledges and drops
// it (malformed payloads cannot be fixed by retrying). Any other error
// negative-acknowledges the message, and the bus requeues it.
type Handler func(ctx context.Context, msg Message) error

// ErrDiscard marks a message as unprocessable. The bus acknowledges it
// without requeueing.
var ErrDiscard = errors.New("message discarded")

// Discard wraps err so the bus drops the message instead of requeueing.
func Discard(err error) error {
	return fmt.Errorf("%w: %w", ErrDiscard, err)
}

// IsDiscard reports whether err marks its message for discard.
func IsDiscard(err error) bool {
	return errors.Is(err, ErrDiscard)
}

// Publisher delivers events to every queue bound to the routing key.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, payload any) error
}

// Subscriber attaches a handler to a durable named queue. A queue bound
// to multiple routing keys receives every matching event; distinct queue
// names receive independent copies.
type Subscriber interface {
	Subscribe(ctx context.Context, queue, exchange string, routingKeys []string, handler Handler) error
}

// Bus combines publishing and subscribing over one broker connection.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}
