// Package mq provides the RabbitMQ client shared by every ShaderForge service.
// All traffic goes through one topic exchange; consumers bind queues to
// routing key patterns.
package mq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/forge-ai/shaderforge/shared/events"
)

const (
	Exchange     = "shaderforge.events"
	ExchangeType = "topic"

	dialAttempts = 10
)

// Bus is the part of Broker the services depend on.
type Bus interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
	Subscribe(queueName, pattern string) (<-chan amqp.Delivery, error)
	Close()
}

var _ Bus = (*Broker)(nil)

// Broker owns one AMQP connection. Publishing shares a channel; each
// subscription gets its own so prefetch limits stay per queue.
type Broker struct {
	url  string
	conn *amqp.Connection

	mu   sync.Mutex
	pub  *amqp.Channel
	subs []*amqp.Channel
}

// New connects to RabbitMQ and declares the exchange.
func New(amqpURL string) (*Broker, error) {
	b := &Broker{url: amqpURL}
	if err := b.connect(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Broker) connect() error {
	var err error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		b.conn, err = amqp.Dial(b.url)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("RabbitMQ connection failed, retrying")
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	if err != nil {
		return fmt.Errorf("rabbitmq connect after %d attempts: %w", dialAttempts, err)
	}

	go func(closed chan *amqp.Error) {
		if e, ok := <-closed; ok && e != nil {
			log.Error().Str("reason", e.Reason).Int("code", e.Code).Msg("RabbitMQ connection closed")
		}
	}(b.conn.NotifyClose(make(chan *amqp.Error, 1)))

	b.pub, err = b.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	// Durable topic exchange
	return b.pub.ExchangeDeclare(
		Exchange,
		ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// Publish sends body to the exchange under routingKey.
func (b *Broker) Publish(ctx context.Context, routingKey string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pub.PublishWithContext(ctx,
		Exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// Subscribe binds a durable queue to pattern and starts consuming with
// manual acks. Pattern examples: "shader.*", "program.#", "log.event".
func (b *Broker) Subscribe(queueName, pattern string) (<-chan amqp.Delivery, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel for %s: %w", queueName, err)
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}

	if err := ch.QueueBind(q.Name, pattern, Exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("bind queue %s to %s: %w", queueName, pattern, err)
	}

	// One unacked generation per consumer; each one is a slow LLM round trip.
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		q.Name,
		"",    // consumer tag, auto-generated
		false, // auto-ack
		false, false, false, nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("consume %s: %w", queueName, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return deliveries, nil
}

// Close shuts down every channel and the connection.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		ch.Close()
	}
	b.subs = nil
	if b.pub != nil {
		b.pub.Close()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}

// PublishEvent wraps payload in an envelope and publishes it on bus.
func PublishEvent(ctx context.Context, bus Bus, routingKey string, payload any) error {
	body, err := events.Wrap(routingKey, payload)
	if err != nil {
		return fmt.Errorf("wrap %s: %w", routingKey, err)
	}
	return bus.Publish(ctx, routingKey, body)
}
