package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"fbicheck/internal/config"
	"fbicheck/internal/events"
	"fbicheck/internal/logging"
	"fbicheck/internal/metrics"
	"fbicheck/internal/services"
)

// Publisher delivers change events downstream.
type Publisher interface {
	// Publish sends ev. An empty routingKey uses the configured default.
	Publish(ctx context.Context, ev events.ChangeEvent, routingKey string) error
	// Reconnect replaces a lost connection.
	Reconnect(ctx context.Context) error
	Close() error
}

// Options configures an AMQP publisher.
type Options struct {
	URL               string
	User              string
	Password          string
	VHost             string
	Exchange          string
	ExchangeType      string
	ExchangeDurable   bool
	RoutingKey        string
	Heartbeat         time.Duration
	ReconnectAttempts int
	ReconnectInterval time.Duration
	Encoder           events.Encoder
}

// OptionsFromConfig builds publisher options from the broker section.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	encoder, err := events.EncoderFor(cfg.Broker.MessageFormat)
	if err != nil {
		return Options{}, services.Wrap(services.ErrConfiguration, "broker", "encoder", "", err)
	}
	return Options{
		URL:               cfg.Broker.URL,
		User:              cfg.Broker.User,
		Password:          cfg.Broker.Password,
		VHost:             cfg.Broker.VHost,
		Exchange:          cfg.Broker.Exchange,
		ExchangeType:      cfg.Broker.ExchangeType,
		ExchangeDurable:   cfg.Broker.ExchangeDurable,
		RoutingKey:        cfg.Broker.RoutingKey,
		Heartbeat:         cfg.BrokerHeartbeat(),
		ReconnectAttempts: cfg.Broker.ReconnectAttempts,
		ReconnectInterval: cfg.BrokerReconnectInterval(),
		Encoder:           encoder,
	}, nil
}

// AMQPPublisher publishes to a RabbitMQ exchange.
type AMQPPublisher struct {
	opts   Options
	logger *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to the broker and declares the exchange.
func Dial(opts Options, logger *slog.Logger) (*AMQPPublisher, error) {
	if opts.Encoder == nil {
		opts.Encoder = events.JSONEncoder{}
	}
	p := &AMQPPublisher{
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "broker"),
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	cfg := amqp.Config{
		Heartbeat: p.opts.Heartbeat,
		Vhost:     p.opts.VHost,
		Properties: amqp.Table{
			"connection_name": "fbicheck",
		},
	}
	if p.opts.User != "" {
		cfg.SASL = []amqp.Authentication{&amqp.PlainAuth{Username: p.opts.User, Password: p.opts.Password}}
	}

	conn, err := amqp.DialConfig(p.opts.URL, cfg)
	if err != nil {
		return services.Wrap(services.ErrTransientBroker, "broker", "dial", "", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return services.Wrap(services.ErrTransientBroker, "broker", "open channel", "", err)
	}
	if err := ch.ExchangeDeclare(p.opts.Exchange, p.opts.ExchangeType, p.opts.ExchangeDurable, false, false, false, nil); err != nil {
		_ = conn.Close()
		return services.Wrap(services.ErrConfiguration, "broker", "declare exchange", p.opts.Exchange, err)
	}

	p.mu.Lock()
	p.conn, p.ch = conn, ch
	p.mu.Unlock()

	p.logger.Info("broker connected",
		logging.String("exchange", p.opts.Exchange),
		logging.String("exchange_type", p.opts.ExchangeType),
	)
	return nil
}

// Publish encodes and sends ev. Channel or connection failures are marked
// with services.ErrTransientBroker so the caller can reconnect and retry.
func (p *AMQPPublisher) Publish(ctx context.Context, ev events.ChangeEvent, routingKey string) error {
	body, err := p.opts.Encoder.Encode(ev)
	if err != nil {
		return fmt.Errorf("encode %s event for %s: %w", ev.Action, ev.Path, err)
	}
	if routingKey == "" {
		routingKey = p.opts.RoutingKey
	}

	p.mu.Lock()
	ch := p.ch
	p.mu.Unlock()
	if ch == nil || ch.IsClosed() {
		return services.Wrap(services.ErrTransientBroker, "broker", "publish", "channel closed", amqp.ErrClosed)
	}

	err = ch.PublishWithContext(ctx, p.opts.Exchange, routingKey, false, false, amqp.Publishing{
		ContentType: p.opts.Encoder.ContentType(),
		Timestamp:   ev.Time,
		Body:        body,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrTransientBroker, "broker", "publish", ev.Path, err)
	}
	metrics.EventsPublished.WithLabelValues(string(ev.Action)).Inc()
	return nil
}

// Reconnect drops the current connection and dials again, retrying up to
// ReconnectAttempts times.
func (p *AMQPPublisher) Reconnect(ctx context.Context) error {
	p.closeConn()

	attempts := max(p.opts.ReconnectAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		metrics.BrokerReconnects.Inc()
		lastErr = p.connect()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, services.ErrConfiguration) {
			return lastErr
		}
		logging.WarnWithContext(p.logger, "broker reconnect failed", "broker_reconnect_failed",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", attempts),
			logging.Error(lastErr),
			logging.String(logging.FieldErrorHint, "check RabbitMQ availability and broker.url"),
			logging.String(logging.FieldImpact, "publishing paused until the broker is reachable"),
		)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.opts.ReconnectInterval):
		}
	}
	return fmt.Errorf("broker unreachable after %d reconnect attempts: %w", attempts, lastErr)
}

// Close shuts the channel and connection.
func (p *AMQPPublisher) Close() error {
	return p.closeConn()
}

func (p *AMQPPublisher) closeConn() error {
	p.mu.Lock()
	conn := p.conn
	p.conn, p.ch = nil, nil
	p.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		return nil
	}
	if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return nil
}
