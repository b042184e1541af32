package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/okian/herdwatch/internal/domain/model"
	"github.com/okian/herdwatch/pkg/logger"
	"github.com/okian/herdwatch/pkg/metrics"
)

const (
	fetchTimeout = 100 * time.Millisecond
	retryDelay   = 50 * time.Millisecond
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// PositionMessage is the JSON payload expected on the positions topic.
type PositionMessage struct {
	FixID    string    `json:"fix_id"`
	EntityID string    `json:"entity_id"`
	Lat      float64   `json:"lat"`
	Lon      float64   `json:"lon"`
	Battery  *int      `json:"battery,omitempty"`
	TS       time.Time `json:"ts"`
}

// SubmitFunc hands a decoded fix to the ingestion pipeline.
type SubmitFunc func(ctx context.Context, fix model.PositionFix) error

// PositionConsumer reads position fixes from a topic and submits them.
type PositionConsumer struct {
	reader    messageReader
	submit    SubmitFunc
	retryable func(error) bool
	logger    logger.Logger
}

// ConsumerOption configures a PositionConsumer.
type ConsumerOption func(*PositionConsumer)

// WithRetryable marks submit errors that should be retried instead of
// skipped, typically queue backpressure.
func WithRetryable(fn func(error) bool) ConsumerOption {
	return func(c *PositionConsumer) {
		if fn != nil {
			c.retryable = fn
		}
	}
}

// WithConsumerLogger sets the logger.
func WithConsumerLogger(l logger.Logger) ConsumerOption {
	return func(c *PositionConsumer) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewPositionConsumer creates a consumer-group reader on topic.
func NewPositionConsumer(brokers []string, topic, groupID string, submit SubmitFunc, opts ...ConsumerOption) *PositionConsumer {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafkago.FirstOffset,
	})
	return newPositionConsumer(reader, submit, opts...)
}

func newPositionConsumer(reader messageReader, submit SubmitFunc, opts ...ConsumerOption) *PositionConsumer {
	c := &PositionConsumer{
		reader:    reader,
		submit:    submit,
		retryable: func(error) bool { return false },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("kafka-positions")
	}
	return c
}

// Run consumes until ctx is cancelled. Malformed messages are committed and
// skipped so they do not block the partition.
func (c *PositionConsumer) Run(ctx context.Context) {
	c.logger.Info(ctx, "starting position consumer")
	for {
		if ctx.Err() != nil {
			return
		}

		readCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		msg, err := c.reader.FetchMessage(readCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			c.logger.Error(ctx, "fetch message failed", logger.Error(err))
			continue
		}

		c.handle(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Warn(ctx, "commit failed", logger.Error(err))
		}
	}
}

func (c *PositionConsumer) handle(ctx context.Context, msg kafkago.Message) {
	fix, err := decodePosition(msg.Value)
	if err != nil {
		metrics.RecordFixRejected("decode")
		c.logger.Warn(ctx, "invalid position message",
			logger.Any("offset", msg.Offset), logger.Error(err))
		return
	}

	for {
		err := c.submit(ctx, fix)
		if err == nil {
			return
		}
		if !c.retryable(err) {
			c.logger.Warn(ctx, "position rejected",
				logger.String("entity_id", fix.EntityID),
				logger.String("fix_id", fix.FixID),
				logger.Error(err))
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}
}

func decodePosition(data []byte) (model.PositionFix, error) {
	var m PositionMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return model.PositionFix{}, fmt.Errorf("decode position: %w", err)
	}
	return model.PositionFix{
		FixID:    m.FixID,
		EntityID: m.EntityID,
		Lat:      m.Lat,
		Lon:      m.Lon,
		Battery:  m.Battery,
		TS:       m.TS,
	}, nil
}

// Close closes the reader.
func (c *PositionConsumer) Close() error {
	return c.reader.Close()
}
