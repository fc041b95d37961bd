// Package kafka mirrors bot events (trades, signals, cycle summaries) onto
// Kafka topics for downstream consumers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Config holds producer settings.
type Config struct {
	Brokers     []string
	TopicPrefix string

	// Channels limits which bus channels are forwarded. Empty forwards all.
	Channels     []string
	MaxAttempts  int
	BatchTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher implements domain.EventPublisher. Each bus channel maps to the
// topic "<prefix>.<channel>"; messages are keyed by instrument when the
// payload carries one so per-instrument ordering holds within a partition.
type Publisher struct {
	writer   messageWriter
	prefix   string
	channels []string
	logger   *slog.Logger
}

// NewPublisher creates a Kafka publisher.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker is required")
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 50 * time.Millisecond
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Balancer:               &kafkago.Hash{},
		AllowAutoTopicCreation: true,
		Compression:            kafkago.Snappy,
		RequiredAcks:           kafkago.RequireAll,
		MaxAttempts:            attempts,
		BatchTimeout:           batchTimeout,
	}
	return newPublisher(w, cfg, logger), nil
}

func newPublisher(w messageWriter, cfg Config, logger *slog.Logger) *Publisher {
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "coinbot"
	}
	return &Publisher{
		writer:   w,
		prefix:   prefix,
		channels: cfg.Channels,
		logger:   logger.With(slog.String("component", "kafka")),
	}
}

// Publish writes payload to the channel's topic. Channels outside the
// configured set are dropped silently.
func (p *Publisher) Publish(ctx context.Context, channel string, payload []byte) error {
	if len(p.channels) > 0 && !slices.Contains(p.channels, channel) {
		return nil
	}

	msg := kafkago.Message{
		Topic: p.Topic(channel),
		Key:   []byte(messageKey(channel, payload)),
		Value: payload,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: publish %s: %w", msg.Topic, err)
	}
	p.logger.DebugContext(ctx, "kafka: message sent",
		slog.String("topic", msg.Topic),
		slog.String("key", string(msg.Key)),
	)
	return nil
}

// Topic returns the topic a channel is written to.
func (p *Publisher) Topic(channel string) string {
	return p.prefix + "." + channel
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func messageKey(channel string, payload []byte) string {
	var probe struct {
		Instrument string `json:"instrument"`
	}
	if err := json.Unmarshal(payload, &probe); err == nil && probe.Instrument != "" {
		return probe.Instrument
	}
	return channel
}
