package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQP publishes messages to a durable topic exchange, routing key = topic.
type AMQP struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQP creates a publisher. The connection is opened lazily and reopened after failures.
func NewAMQP(url, exchange string) *AMQP {
	return &AMQP{url: url, exchange: exchange}
}

func (a *AMQP) channel() (*amqp.Channel, error) {
	if a.ch != nil && !a.ch.IsClosed() {
		return a.ch, nil
	}
	a.reset()
	conn, err := amqp.Dial(a.url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(a.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	a.conn, a.ch = conn, ch
	return ch, nil
}

func (a *AMQP) reset() {
	if a.ch != nil {
		_ = a.ch.Close()
		a.ch = nil
	}
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
}

// Publish sends msg as a persistent JSON message.
func (a *AMQP) Publish(ctx context.Context, msg Message) error {
	body, err := msg.body()
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, err := a.channel()
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, a.exchange, msg.Topic, false, false, pub); err != nil {
		a.reset()
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

// Close releases the connection.
func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()
	return nil
}
