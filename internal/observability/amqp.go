package observability

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error
	Close() error
}

type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	mu       sync.Mutex
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

// NewPublisher connects to RabbitMQ, or returns a publisher that only logs
// when AMQP is disabled or unreachable.
func NewPublisher(url, exchange string, logger zerolog.Logger) Publisher {
	if url == "" {
		logger.Info().Msg("amqp disabled, lifecycle events are logged only")
		return NoopPublisher{logger: logger, reason: "empty amqp url"}
	}
	p, err := NewAMQPPublisher(url, exchange)
	if err != nil {
		logger.Warn().Err(err).Msg("amqp unavailable, lifecycle events are logged only")
		return NoopPublisher{logger: logger, reason: err.Error()}
	}
	logger.Info().Str("exchange", exchange).Msg("amqp connected")
	return p
}

func (p *AMQPPublisher) PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	amqpHeaders := amqp.Table{}
	for key, value := range headers {
		amqpHeaders[key] = value
	}

	// amqp channels are not safe for concurrent publishes.
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now(),
		Headers:      amqpHeaders,
	})
}

func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// NoopPublisher drops events after logging them at debug level.
type NoopPublisher struct {
	logger zerolog.Logger
	reason string
}

func (p NoopPublisher) PublishJSON(_ context.Context, routingKey string, message interface{}, _ map[string]string) error {
	ev := p.logger.Debug().Str("routing_key", routingKey)
	if env, ok := message.(EventEnvelope); ok {
		ev = ev.Str("event_name", env.EventName)
	}
	ev.Msg("noop publish")
	return nil
}

func (NoopPublisher) Close() error { return nil }

// Reason reports why AMQP was not used.
func (p NoopPublisher) Reason() string { return p.reason }

var (
	publisherMu      sync.RWMutex
	defaultPublisher Publisher
)

func SetPublisher(publisher Publisher) {
	publisherMu.Lock()
	defer publisherMu.Unlock()
	defaultPublisher = publisher
}

func PublishEvent(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	publisherMu.RLock()
	publisher := defaultPublisher
	publisherMu.RUnlock()
	if publisher == nil {
		return nil
	}

	err := publisher.PublishJSON(ctx, routingKey, message, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *AMQPPublisher:
		return "amqp"
	case NoopPublisher, *NoopPublisher:
		return "noop"
	case nil:
		return "none"
	default:
		return "unknown"
	}
}
