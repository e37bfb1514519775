package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// EventPublisher emits monitoring events for downstream consumers. The
// scheduler treats publishing as fire-and-forget; a failed publish is
// logged, never fails a cycle.
type EventPublisher interface {
	PublishMeasurementStored(ctx context.Context, event MeasurementStoredEvent) error
	PublishDeviceUnhealthy(ctx context.Context, event DeviceUnhealthyEvent) error
}

// MeasurementStoredEvent is published when a cycle persists a measurement.
type MeasurementStoredEvent struct {
	EventID     string   `json:"event_id"`
	DeviceID    string   `json:"device_id"`
	ObservedAt  string   `json:"observed_at"`
	Fingerprint string   `json:"fingerprint"`
	DepthMM     *float64 `json:"depth_mm"`
	VelocityMPS *float64 `json:"velocity_mps"`
	FlowLPS     *float64 `json:"flow_lps"`
}

// DeviceUnhealthyEvent is published once when a device crosses the
// consecutive-failure threshold.
type DeviceUnhealthyEvent struct {
	EventID             string `json:"event_id"`
	DeviceID            string `json:"device_id"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastError           string `json:"last_error"`
}

const (
	routingKeyMeasurementStored = "measurement.stored"
	routingKeyDeviceUnhealthy   = "device.unhealthy"
)

// Publisher handles event publishing to RabbitMQ
type Publisher struct {
	conn     *Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher creates a new RabbitMQ publisher
func NewPublisher(conn *Connection, exchange string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	// Declare exchange
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// PublishMeasurementStored publishes a stored-measurement event.
func (p *Publisher) PublishMeasurementStored(ctx context.Context, event MeasurementStoredEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if err := p.publish(ctx, routingKeyMeasurementStored, event); err != nil {
		return err
	}

	p.logger.Debug("published measurement stored event",
		zap.String("device_id", event.DeviceID),
		zap.String("fingerprint", event.Fingerprint),
	)
	return nil
}

// PublishDeviceUnhealthy publishes an unhealthy-transition event.
func (p *Publisher) PublishDeviceUnhealthy(ctx context.Context, event DeviceUnhealthyEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if err := p.publish(ctx, routingKeyDeviceUnhealthy, event); err != nil {
		return err
	}

	p.logger.Debug("published device unhealthy event",
		zap.String("device_id", event.DeviceID),
		zap.Int("consecutive_failures", event.ConsecutiveFailures),
	)
	return nil
}

func (p *Publisher) publish(ctx context.Context, routingKey string, event interface{}) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)

	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}

// NopPublisher discards events. It stands in when no RABBITMQ_URL is
// configured so callers never have to nil-check the publisher.
type NopPublisher struct{}

func (NopPublisher) PublishMeasurementStored(context.Context, MeasurementStoredEvent) error {
	return nil
}

func (NopPublisher) PublishDeviceUnhealthy(context.Context, DeviceUnhealthyEvent) error {
	return nil
}
