package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"wallet2bank/internal/bank/domain"
	"wallet2bank/internal/bank/service"
)

// Consumer drains the settlement queue one delivery at a time and drives
// each transaction through the service: settle, then notify the wallet.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  Config
	service *service.Service
}

// NewConsumer connects to the broker and declares the queue topology.
func NewConsumer(cfg Config, svc *service.Service) (*Consumer, error) {
	conn, channel, err := Connect(cfg)
	if err != nil {
		return nil, err
	}

	// One unacked delivery at a time keeps settlement strictly ordered
	// per consumer and makes requeue behaviour predictable.
	if err := channel.Qos(1, 0, false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	log.Printf("settlement consumer initialized: exchange=%s, queue=%s, routing_key=%s",
		cfg.Exchange, cfg.Queue, cfg.RoutingKey)

	return &Consumer{conn: conn, channel: channel, config: cfg, service: svc}, nil
}

// Start consumes until the context is cancelled or the channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.config.Queue,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (we'll ack manually)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	log.Printf("settlement consumer started, waiting for messages on queue: %s", c.config.Queue)

	for {
		select {
		case <-ctx.Done():
			log.Println("context cancelled, stopping settlement consumer")
			return nil

		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			c.handleDelivery(ctx, msg)
		}
	}
}

// handleDelivery settles one transactionId. Acknowledgement policy:
//   - settled (or nothing to do): ack, then deliver the callback
//   - transient fault: nack with requeue for another run
//   - retries exhausted: reject without requeue so the broker routes the
//     delivery to the dead-letter queue
func (c *Consumer) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	transactionID := string(msg.Body)

	txn, err := c.service.Settle(ctx, transactionID)
	if err != nil {
		if errors.Is(err, domain.ErrRetriesExhausted) {
			log.Printf("ALERT: parking settlement %s in dead-letter queue: %v", transactionID, err)
			msg.Reject(false)
			return
		}
		log.Printf("settlement fault for %s, requeueing: %v", transactionID, err)
		msg.Nack(false, true)
		return
	}

	// Ack before the callback: settlement is durable, and callback
	// delivery has its own recovery path on the wallet side.
	msg.Ack(false)
	if txn != nil {
		c.service.NotifyWallet(ctx, txn)
	}
}

// Close closes the RabbitMQ channel and connection.
func (c *Consumer) Close() error {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			log.Printf("error closing channel: %v", err)
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
