package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	commonredis "parent-wellness/common/redis"
	"parent-wellness/internal/docstore"
	"parent-wellness/internal/models"
)

// WriteHandler receives decoded health-data write events
type WriteHandler interface {
	HandleWrite(ctx context.Context, event docstore.WriteEvent) (*models.AlertDocument, error)
}

// ConsumerConfig stream and group names
type ConsumerConfig struct {
	Stream        string
	ConsumerGroup string
	ConsumerName  string
	BatchSize     int64
	Block         time.Duration
	RetryInterval time.Duration // how often failed entries are redelivered
}

// DefaultRetryInterval between redelivery passes over pending entries
const DefaultRetryInterval = 30 * time.Second

// WriteConsumer reads the document-write stream through a consumer group
type WriteConsumer struct {
	client    *commonredis.Client
	config    ConsumerConfig
	handler   WriteHandler
	logger    *zap.Logger
	now       func() time.Time
	lastRetry time.Time // zero until the first pass, so leftovers from a previous run go first
}

// NewWriteConsumer creates a consumer
func NewWriteConsumer(client *commonredis.Client, cfg ConsumerConfig, handler WriteHandler, logger *zap.Logger) *WriteConsumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	return &WriteConsumer{
		client:  client,
		config:  cfg,
		handler: handler,
		logger:  logger,
		now:     time.Now,
	}
}

// Start consumes until ctx is done
func (c *WriteConsumer) Start(ctx context.Context) error {
	if err := commonredis.CreateConsumerGroup(ctx, c.client, c.config.Stream, c.config.ConsumerGroup); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", c.config.Stream, err)
	}

	c.logger.Info("Write consumer started",
		zap.String("stream", c.config.Stream),
		zap.String("consumer_group", c.config.ConsumerGroup),
		zap.String("consumer_name", c.config.ConsumerName),
	)

	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if _, err := c.ConsumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to consume write stream",
				zap.Error(err),
				zap.Duration("backoff", backoffDuration),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoffDuration):
				backoffDuration *= 2
				if backoffDuration > maxBackoff {
					backoffDuration = maxBackoff
				}
			}
			continue
		}
		backoffDuration = time.Second
	}
}

// ConsumeOnce redelivers pending entries when a retry pass is due, then
// reads one batch of new entries. It returns how many entries were acked.
// Entries whose handler fails stay pending for the next retry pass.
func (c *WriteConsumer) ConsumeOnce(ctx context.Context) (int, error) {
	acked := 0

	// 1. entries whose handler failed before
	if c.lastRetry.IsZero() || c.now().Sub(c.lastRetry) >= c.config.RetryInterval {
		n, err := c.redeliver(ctx)
		if err != nil {
			return 0, err
		}
		c.lastRetry = c.now()
		acked += n
	}

	// 2. new entries
	messages, err := commonredis.ReadFromStream(
		ctx,
		c.client,
		c.config.Stream,
		c.config.ConsumerGroup,
		c.config.ConsumerName,
		c.config.BatchSize,
		c.config.Block,
	)
	if err != nil {
		return acked, fmt.Errorf("failed to read from stream %s: %w", c.config.Stream, err)
	}
	return acked + c.process(ctx, messages), nil
}

// redeliver walks this consumer's pending list page by page
func (c *WriteConsumer) redeliver(ctx context.Context) (int, error) {
	acked := 0
	start := "0"
	for {
		messages, err := commonredis.ReadPending(
			ctx,
			c.client,
			c.config.Stream,
			c.config.ConsumerGroup,
			c.config.ConsumerName,
			start,
			c.config.BatchSize,
		)
		if err != nil {
			return acked, fmt.Errorf("failed to read pending entries of %s: %w", c.config.Stream, err)
		}
		if len(messages) == 0 {
			return acked, nil
		}

		c.logger.Info("Redelivering pending write events", zap.Int("count", len(messages)))
		acked += c.process(ctx, messages)

		if int64(len(messages)) < c.config.BatchSize {
			return acked, nil
		}
		start = messages[len(messages)-1].ID
	}
}

func (c *WriteConsumer) process(ctx context.Context, messages []commonredis.StreamMessage) int {
	acked := 0
	for _, msg := range messages {
		event, err := DecodeWriteEvent(msg.Values)
		if err != nil {
			// never decodable, ack so it does not stay pending forever
			c.logger.Error("Dropping malformed write event",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		} else if _, err := c.handler.HandleWrite(ctx, event); err != nil {
			c.logger.Error("Failed to process write event",
				zap.String("message_id", msg.ID),
				zap.String("path", event.Path),
				zap.Error(err),
			)
			continue
		}

		if err := commonredis.Ack(ctx, c.client, c.config.Stream, c.config.ConsumerGroup, msg.ID); err != nil {
			c.logger.Warn("Failed to ack message", zap.String("message_id", msg.ID), zap.Error(err))
			continue
		}
		acked++
	}
	return acked
}

// DecodeWriteEvent parses the "data" field written by PublishJSONToStream
func DecodeWriteEvent(values map[string]interface{}) (docstore.WriteEvent, error) {
	var event docstore.WriteEvent
	raw, ok := values["data"].(string)
	if !ok {
		return event, fmt.Errorf("missing data field")
	}
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return event, fmt.Errorf("failed to decode write event: %w", err)
	}
	if event.Path == "" {
		return event, fmt.Errorf("write event has no path")
	}
	return event, nil
}
