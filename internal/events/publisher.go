// Package events publishes quiz domain events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"khodkquiz/internal/domain"

	"github.com/rabbitmq/amqp091-go"
)

const (
	DefaultExchange         = "khodkquiz.events"
	RoutingAttemptSubmitted = "quiz.attempt.submitted"
)

// channel is the part of *amqp091.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher sends events to a topic exchange. A publisher built without a URL is
// disabled and only logs what it would have sent.
type Publisher struct {
	conn     *amqp091.Connection
	mu       sync.Mutex
	ch       channel
	exchange string
	enabled  bool
	log      *slog.Logger
}

// NewPublisher dials url and declares a durable topic exchange.
func NewPublisher(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	if url == "" {
		logger.Warn("amqp url is empty, event publishing is disabled")
		return &Publisher{exchange: exchange, log: logger}, nil
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	logger.Info("event publisher ready", "exchange", exchange)
	return &Publisher{conn: conn, ch: ch, exchange: exchange, enabled: true, log: logger}, nil
}

// Enabled reports whether events actually reach a broker.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// PublishAttempt announces a stored attempt under quiz.attempt.submitted.
func (p *Publisher) PublishAttempt(ctx context.Context, ev domain.AttemptSubmitted) error {
	if !p.enabled {
		p.log.Debug("event publishing disabled, skipping", "routing_key", RoutingAttemptSubmitted, "attempt_id", ev.AttemptID)
		return nil
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx,
		p.exchange,              // exchange
		RoutingAttemptSubmitted, // routing key
		false,                   // mandatory
		false,                   // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    ev.AttemptID,
			Timestamp:    time.Now(),
			Body:         body,
			Headers: amqp091.Table{
				"event_type": RoutingAttemptSubmitted,
				"quiz_id":    ev.QuizID,
				"user_id":    ev.UserID,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	p.log.Debug("event published", "routing_key", RoutingAttemptSubmitted, "attempt_id", ev.AttemptID)
	return nil
}

func (p *Publisher) Close() error {
	if !p.enabled {
		return nil
	}
	if err := p.ch.Close(); err != nil {
		p.log.Warn("close amqp channel", "err", err)
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("close amqp connection: %w", err)
		}
	}
	return nil
}
