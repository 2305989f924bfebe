// README: RabbitMQ topic-exchange publisher for committed ride events.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"ridepool/internal/modules/ride"
)

type RabbitPublisher struct {
	url      string
	exchange string
	log      *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewRabbitPublisher dials url and declares a durable topic exchange.
func NewRabbitPublisher(url, exchange string, log *zap.Logger) (*RabbitPublisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &RabbitPublisher{url: url, exchange: exchange, log: log.With(zap.String("component", "rabbitmq"))}
	if err := r.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	return r, nil
}

// PublishEvent publishes e with routing key derived from its name,
// e.g. booking:confirmed -> booking.confirmed.
func (r *RabbitPublisher) PublishEvent(ctx context.Context, e ride.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil || r.conn.IsClosed() || r.ch == nil || r.ch.IsClosed() {
		r.log.Warn("rabbitmq connection closed, reconnecting")
		if err := r.connect(); err != nil {
			return fmt.Errorf("reconnect rabbitmq: %w", err)
		}
	}
	return r.ch.PublishWithContext(ctx, r.exchange, RoutingKey(e), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.At,
		Type:         e.Name(),
		Body:         body,
	})
}

func (r *RabbitPublisher) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch != nil && !r.ch.IsClosed() {
		if err := r.ch.Close(); err != nil {
			return fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if r.conn != nil && !r.conn.IsClosed() {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}

// connect must be called with r.mu held or before r is shared.
func (r *RabbitPublisher) connect() error {
	conn, err := amqp.Dial(r.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	if err := ch.ExchangeDeclare(r.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return err
	}
	r.conn, r.ch = conn, ch
	return nil
}

func RoutingKey(e ride.Event) string {
	return strings.ReplaceAll(e.Name(), ":", ".")
}
