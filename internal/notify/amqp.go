package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// publisher is the subset of *amqp.Channel used for delivery.
type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier publishes events as JSON to a topic exchange.
type AMQPNotifier struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	ch         publisher
	exchange   string
	routingKey string
}

// DialAMQP connects to the broker and declares a durable topic exchange.
func DialAMQP(url, exchange, routingKey string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPNotifier{conn: conn, ch: ch, exchange: exchange, routingKey: routingKey}, nil
}

func newAMQPNotifierWithPublisher(p publisher, exchange, routingKey string) *AMQPNotifier {
	return &AMQPNotifier{ch: p, exchange: exchange, routingKey: routingKey}
}

// RoutingKey returns "<base>.<kind>.<state>", e.g. credential.decided.document.rejected.
func (n *AMQPNotifier) RoutingKey(event Event) string {
	return fmt.Sprintf("%s.%s.%s", n.routingKey, event.Kind, event.State)
}

// Notify publishes one event. The channel is shared, so publishes are serialized.
func (n *AMQPNotifier) Notify(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch.Publish(
		n.exchange,
		n.RoutingKey(event),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			MessageId:    event.RecordID + "@" + event.DecidedAt.UTC().Format(time.RFC3339Nano),
			Body:         body,
		},
	)
}

// Close closes the channel and connection.
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var firstErr error
	if n.ch != nil {
		if err := n.ch.Close(); err != nil {
			firstErr = err
		}
	}
	if n.conn != nil {
		if err := n.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
