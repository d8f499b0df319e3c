// Package kafka implements the event bus contract on top of Kafka.
//
// Mapping: each (exchange, routing key) pair becomes one topic named
// "<exchange>.<routing key>"; a durable queue becomes a consumer group,
// so every named queue receives its own copy of each event and offsets
// survive restarts. Negative acknowledgment is expressed by republishing
// the message to its topic before committing the original offset, which
// preserves at-least-once delivery without blocking the partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/pageturn/fulfillment/internal/eventbus"
)

// Bus is a Kafka-backed event bus.
type Bus struct {
	brokers []string

	mu      sync.Mutex
	writers map[string]*kafka.Writer
	readers []*kafka.Reader
	wg      sync.WaitGroup
	closed  bool
}

// NewBus creates a bus publishing to and consuming from the given brokers.
func NewBus(brokers []string) *Bus {
	return &Bus{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

func topicName(exchange, routingKey string) string {
	return exchange + "." + routingKey
}

// Publish writes the JSON-encoded payload to the topic for the routing key.
func (b *Bus) Publish(ctx context.Context, exchange, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", routingKey, err)
	}

	writer, err := b.writer(topicName(exchange, routingKey))
	if err != nil {
		return err
	}

	if err := writer.WriteMessages(ctx, kafka.Message{Value: body}); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

// Subscribe starts one reader per routing key, all sharing the queue name
// as consumer group so offsets are durable per consuming service.
func (b *Bus) Subscribe(ctx context.Context, queue, exchange string, routingKeys []string, handler eventbus.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("subscribe %s: bus is closed", queue)
	}

	for _, key := range routingKeys {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  b.brokers,
			GroupID:  queue,
			Topic:    topicName(exchange, key),
			MinBytes: 1,
			MaxBytes: 10e6,
		})
		b.readers = append(b.readers, reader)

		b.wg.Add(1)
		go func(reader *kafka.Reader, exchange, key string) {
			defer b.wg.Done()
			b.consume(ctx, reader, queue, exchange, key, handler)
		}(reader, exchange, key)
	}
	return nil
}

func (b *Bus) consume(ctx context.Context, reader *kafka.Reader, queue, exchange, routingKey string, handler eventbus.Handler) {
	for {
		fetched, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("fetch message failed", "queue", queue, "routing_key", routingKey, "error", err)
			time.Sleep(time.Second)
			continue
		}

		msg := eventbus.Message{Exchange: exchange, RoutingKey: routingKey, Body: fetched.Value}
		handlerErr := handler(ctx, msg)

		switch {
		case handlerErr == nil:
			// acknowledged below
		case eventbus.IsDiscard(handlerErr):
			slog.Warn("discarding unprocessable message",
				"queue", queue, "routing_key", routingKey, "error", handlerErr)
		default:
			slog.Warn("requeueing message after handler failure",
				"queue", queue, "routing_key", routingKey, "error", handlerErr)
			if err := b.requeue(ctx, fetched.Topic, fetched.Value); err != nil {
				slog.Error("requeue failed, leaving offset uncommitted",
					"queue", queue, "routing_key", routingKey, "error", err)
				continue
			}
		}

		if err := reader.CommitMessages(ctx, fetched); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("commit failed", "queue", queue, "routing_key", routingKey, "error", err)
		}
	}
}

func (b *Bus) requeue(ctx context.Context, topic string, body []byte) error {
	writer, err := b.writer(topic)
	if err != nil {
		return err
	}
	return writer.WriteMessages(ctx, kafka.Message{Value: body})
}

func (b *Bus) writer(topic string) (*kafka.Writer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("write %s: bus is closed", topic)
	}
	if w, ok := b.writers[topic]; ok {
		return w, nil
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(b.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	b.writers[topic] = w
	return w, nil
}

// Close stops all readers and writers and waits for consume loops.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	readers := b.readers
	writers := b.writers
	b.mu.Unlock()

	var firstErr error
	for _, r := range readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.wg.Wait()
	for _, w := range writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
