package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sitewatch/snapshotd/internal/models"
	"github.com/sitewatch/snapshotd/internal/services"
	"github.com/sitewatch/snapshotd/internal/telemetry"
	"github.com/sitewatch/snapshotd/internal/telemetry/metrics"
)

// Holds the config params for the consumer
type AMQPConfig struct {
	AMQPUri  string
	Exchange string

	SnapshotsQueueName string
}

type AMQPConsumer struct {
	conn         *amqp.Connection
	channel      *amqp.Channel
	config       AMQPConfig
	baselinesSvc *services.BaselinesService
	telemetry    *telemetry.TelemetrySvc
}

// Creates a new AMQPConsumer instance ready to connect to broker
func NewAMQPConsumer(
	config AMQPConfig,
	baselinesSvc *services.BaselinesService,
	telemetry *telemetry.TelemetrySvc,
) (*AMQPConsumer, error) {

	if config.AMQPUri == "" {
		return nil, fmt.Errorf("AMQP URI cannot be empty in config")
	}
	if config.Exchange == "" {
		return nil, fmt.Errorf("AMQP exchange cannot be empty in config")
	}
	if config.SnapshotsQueueName == "" {
		return nil, fmt.Errorf(
			"AMQP snapshots queue name cannot be empty in config",
		)
	}

	return &AMQPConsumer{
		config:       config,
		baselinesSvc: baselinesSvc,
		telemetry:    telemetry,
	}, nil
}

// Connects to AMQP broker, declares exchange and queue and
// starts consuming messages
func (c *AMQPConsumer) Start(ctx context.Context) error {
	slog.Debug("AMQP - Initializing AMQP Consumer")

	var err error
	c.conn, err = amqp.Dial(c.config.AMQPUri)
	if err != nil {
		return fmt.Errorf("AMQP - Connection to broker failed: %w", err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("AMQP - Failed to open channel: %w", err)
	}

	err = c.channel.ExchangeDeclare(
		c.config.Exchange,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		c.channel.Close()
		c.conn.Close()
		return fmt.Errorf("AMQP - Failed to declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.config.SnapshotsQueueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		c.channel.Close()
		c.conn.Close()
		return fmt.Errorf("AMQP - Failed to declare snapshots queue: %w", err)
	}

	err = c.channel.QueueBind(
		c.config.SnapshotsQueueName, // Queue
		c.config.SnapshotsQueueName, // Routing key
		c.config.Exchange,           // Exchange
		false,                       // No-wait
		nil,                         // Arguments
	)
	if err != nil {
		c.channel.Close()
		c.conn.Close()
		return fmt.Errorf("AMQP - Failed to bind snapshots queue: %w", err)
	}

	go c.consumeSnapshotEvents(ctx)
	return nil
}

// Gracefully stops the AMQP consumer
func (c *AMQPConsumer) Stop() {
	slog.Info("AMQP - Stopping AMQP Consumer...")

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			slog.Error("AMQP - Failed to close channel", "error", err)
		} else {
			slog.Debug("AMQP - Channel closed")
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			slog.Error("AMQP - Failed to close connection", "error", err)
		} else {
			slog.Debug("AMQP - Connection closed")
		}
	}

	slog.Info("AMQP - AMQP Consumer stopped")
}

func (c *AMQPConsumer) consumeSnapshotEvents(ctx context.Context) {
	msgs, err := c.channel.Consume(
		c.config.SnapshotsQueueName,
		"snapshotd", // Consumer tag
		false,       // Auto-acknowledge
		false,       // Exclusive
		false,       // No-local
		false,       // No-wait
		nil,         // Arguments
	)
	if err != nil {
		slog.Error(
			"AMQP - Failed to create snapshots queue consumer",
			"error",
			err,
		)
		return
	}

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				slog.Info(
					"AMQP - Snapshot message channel closed. goroutine exiting",
				)
				return
			}

			var evt models.SnapshotCapturedEvent
			err := json.Unmarshal(msg.Body, &evt)
			if err != nil {
				slog.Error(
					"AMQP - Failed to unmarshal snapshot event",
					"error",
					err,
					"message",
					string(msg.Body),
				)

				if nackErr := msg.Nack(false, false); nackErr != nil {
					slog.Error(
						"AMQP - Failed to nack snapshot event",
						"error",
						nackErr,
					)
				}
				continue
			}

			c.telemetry.Metrics().Increment(
				metrics.SnapshotEventReceived,
				nil,
			)

			err = c.baselinesSvc.ProcessCaptureEvent(ctx, evt)
			if err != nil {
				slog.Error(
					"AMQP - Failed to process snapshot event",
					"error",
					err,
					"siteId",
					evt.SiteID,
					"filePath",
					evt.FilePath,
				)

				if nackErr := msg.Nack(false, false); nackErr != nil {
					slog.Error(
						"AMQP - Failed to nack snapshot event",
						"error",
						nackErr,
					)
				}
				continue
			}

			// Acknowledge the message
			if err := msg.Ack(false); err != nil {
				slog.Error(
					"AMQP - Failed to acknowledge snapshot event",
					"error",
					err,
				)
			}

		case <-ctx.Done():
			slog.Info(
				"AMQP - Context done signal received, " +
					"stopping snapshot consumption goroutine...",
			)
			return
		}
	}
}
