// Package messaging carries the bank settlement queue on RabbitMQ:
// accepted transaction ids go in, a consumer settles them one at a time,
// and deliveries that keep faulting park in a dead-letter queue.
package messaging

import (
	"context"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config names the broker entities. The dead-letter pair is where
// deliveries land once the redelivery ceiling is hit.
type Config struct {
	URL             string
	Exchange        string
	Queue           string
	RoutingKey      string
	DeadLetterQueue string
	DeadLetterKey   string
}

// Connect dials the broker, opens a channel and declares the exchange,
// the settlement queue (dead-letter routed) and the parking queue.
// Declarations are idempotent so producer and consumer both run this.
func Connect(cfg Config) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declare(channel, cfg); err != nil {
		channel.Close()
		conn.Close()
		return nil, nil, err
	}
	return conn, channel, nil
}

func declare(channel *amqp.Channel, cfg Config) error {
	if err := channel.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Parking queue first so the settlement queue can point at it.
	if _, err := channel.QueueDeclare(cfg.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter queue: %w", err)
	}
	if err := channel.QueueBind(cfg.DeadLetterQueue, cfg.DeadLetterKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead-letter queue: %w", err)
	}

	queue, err := channel.QueueDeclare(cfg.Queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    cfg.Exchange,
		"x-dead-letter-routing-key": cfg.DeadLetterKey,
	})
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := channel.QueueBind(queue.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// Producer enqueues transaction ids for settlement.
type Producer struct {
	channel *amqp.Channel
	config  Config
}

// NewProducer creates a Producer over an already-declared channel.
func NewProducer(channel *amqp.Channel, cfg Config) *Producer {
	return &Producer{channel: channel, config: cfg}
}

// Publish enqueues the bare transactionId, persistent.
func (p *Producer) Publish(ctx context.Context, transactionID string) error {
	err := p.channel.PublishWithContext(ctx,
		p.config.Exchange,
		p.config.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "text/plain",
			DeliveryMode: amqp.Persistent,
			Body:         []byte(transactionID),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish settlement job: %w", err)
	}
	log.Printf("enqueued settlement for %s", transactionID)
	return nil
}
