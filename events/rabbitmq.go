package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of amqp.Channel the broadcaster needs
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitBroadcaster pushes emergency broadcasts onto a durable queue
type RabbitBroadcaster struct {
	conn  *amqp.Connection
	ch    Channel
	queue string
}

// NewRabbitBroadcaster dials the broker and declares the queue
func NewRabbitBroadcaster(url, queue string) (*RabbitBroadcaster, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &RabbitBroadcaster{conn: conn, ch: ch, queue: queue}, nil
}

// NewRabbitBroadcasterWithChannel allows injecting a test channel
func NewRabbitBroadcasterWithChannel(ch Channel, queue string) *RabbitBroadcaster {
	return &RabbitBroadcaster{ch: ch, queue: queue}
}

func (b *RabbitBroadcaster) Publish(ctx context.Context, key string, value interface{}) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal broadcast: %w", err)
	}
	return b.ch.PublishWithContext(ctx,
		"",      // default exchange
		b.queue, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			CorrelationId: key,
			Body:          body,
		},
	)
}

func (b *RabbitBroadcaster) Close() error {
	if err := b.ch.Close(); err != nil {
		return err
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
