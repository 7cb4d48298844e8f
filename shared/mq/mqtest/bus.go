// Package mqtest provides an in-memory mq.Bus for tests.
package mqtest

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/forge-ai/shaderforge/shared/events"
	"github.com/forge-ai/shaderforge/shared/mq"
)

// Message is one recorded publish.
type Message struct {
	RoutingKey string
	Body       []byte
}

// Bus records publishes and hands out channels that tests feed directly.
type Bus struct {
	mu        sync.Mutex
	Published []Message
	Err       error            // returned by every Publish when set
	ErrFor    map[string]error // returned by Publish for one routing key

	queues map[string]chan amqp.Delivery
}

var _ mq.Bus = (*Bus)(nil)

func New() *Bus {
	return &Bus{queues: make(map[string]chan amqp.Delivery)}
}

func (b *Bus) Publish(ctx context.Context, routingKey string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return b.Err
	}
	if err := b.ErrFor[routingKey]; err != nil {
		return err
	}
	b.Published = append(b.Published, Message{RoutingKey: routingKey, Body: body})
	return nil
}

// Subscribe returns the buffered channel for queueName. pattern is ignored.
func (b *Bus) Subscribe(queueName, pattern string) (<-chan amqp.Delivery, error) {
	return b.Queue(queueName), nil
}

// Queue returns the channel behind queueName, creating it on first use.
func (b *Bus) Queue(queueName string) chan amqp.Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[queueName]
	if !ok {
		q = make(chan amqp.Delivery, 16)
		b.queues[queueName] = q
	}
	return q
}

func (b *Bus) Close() {}

// Keys returns the routing keys published so far, in order.
func (b *Bus) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.Published))
	for _, m := range b.Published {
		keys = append(keys, m.RoutingKey)
	}
	return keys
}

// Last returns the payload of the most recent publish under routingKey.
func Last[T any](b *Bus, routingKey string) (*T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.Published) - 1; i >= 0; i-- {
		if b.Published[i].RoutingKey == routingKey {
			p, err := events.Unwrap[T](b.Published[i].Body)
			return p, err == nil
		}
	}
	return nil, false
}

// Acker is an amqp.Acknowledger that counts outcomes.
type Acker struct {
	mu       sync.Mutex
	Acks     int
	Nacks    int
	Requeued int
}

func (a *Acker) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Acks++
	return nil
}

func (a *Acker) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Nacks++
	if requeue {
		a.Requeued++
	}
	return nil
}

func (a *Acker) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

// Counts returns acks, nacks and requeues so far.
func (a *Acker) Counts() (acks, nacks, requeued int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Acks, a.Nacks, a.Requeued
}

// Delivery builds a delivery carrying payload wrapped in an envelope.
func Delivery(routingKey string, payload any) (amqp.Delivery, *Acker) {
	body, err := events.Wrap(routingKey, payload)
	if err != nil {
		panic(err)
	}
	return RawDelivery(routingKey, body)
}

// RawDelivery builds a delivery with an arbitrary body.
func RawDelivery(routingKey string, body []byte) (amqp.Delivery, *Acker) {
	a := &Acker{}
	return amqp.Delivery{Acknowledger: a, RoutingKey: routingKey, Body: body}, a
}
