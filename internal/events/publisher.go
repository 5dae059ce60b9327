package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fibreville/tigris/internal/models"
	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	LedgerExchange       = "tigris.ledger"
	TransferCompletedKey = "ledger.transfer.completed"
	PayrollCompletedKey  = "ledger.payroll.completed"
	exchangeKind         = "topic"
	defaultDialTimeout   = 10 * time.Second
)

// Publisher is implemented by types that can publish ledger events.
type Publisher interface {
	PublishTransfer(ctx context.Context, event models.TransferEvent) error
	PublishPayroll(ctx context.Context, run models.PayrollRun) error
	Close()
}

// EventProducer publishes ledger events to a RabbitMQ topic exchange.
type EventProducer struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	log     *logrus.Logger
}

// FallbackPublisher drops events. It is used when RabbitMQ is not configured
// or unreachable at startup.
type FallbackPublisher struct {
	Log *logrus.Logger
}

func (p *FallbackPublisher) PublishTransfer(_ context.Context, event models.TransferEvent) error {
	if p.Log != nil {
		p.Log.WithField("event_id", event.EventID).Debug("transfer event publish skipped")
	}
	return nil
}

func (p *FallbackPublisher) PublishPayroll(_ context.Context, run models.PayrollRun) error {
	if p.Log != nil {
		p.Log.WithField("run_id", run.ID).Debug("payroll event publish skipped")
	}
	return nil
}

func (p *FallbackPublisher) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

func NewEventProducer(amqpURL string, log *logrus.Logger) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(defaultDialTimeout)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(LedgerExchange, exchangeKind, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch, log: log}, nil
}

func (p *EventProducer) PublishTransfer(ctx context.Context, event models.TransferEvent) error {
	return p.publish(ctx, TransferCompletedKey, event)
}

func (p *EventProducer) PublishPayroll(ctx context.Context, run models.PayrollRun) error {
	return p.publish(ctx, PayrollCompletedKey, run)
}

func (p *EventProducer) publish(ctx context.Context, routingKey string, body any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         jsonBody,
	}
	err = p.channel.PublishWithContext(ctx, LedgerExchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}

	p.log.WithError(err).WithField("routing_key", routingKey).Warn("publish failed; reopening channel")
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return chErr
	}
	p.channel = ch
	return p.channel.PublishWithContext(ctx, LedgerExchange, routingKey, false, false, msg)
}

func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
