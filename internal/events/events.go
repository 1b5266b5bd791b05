// Package events publishes finished runs to Kafka for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/deusflow/banterbot/internal/logger"
	"github.com/deusflow/banterbot/internal/topics"
)

const DefaultTopic = "banterbot.runs"

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RunEvent is the JSON value of each message.
type RunEvent struct {
	Type string `json:"type"`
	topics.Entry
}

// Publisher is a run sink that writes one message per run, keyed by run ID.
type Publisher struct {
	writer messageWriter
	topic  string
	log    *slog.Logger
}

// NewPublisher writes synchronously to topic on brokers. An empty topic means DefaultTopic.
func NewPublisher(brokers []string, topic string, log *slog.Logger) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	return newPublisher(w, topic, log)
}

func newPublisher(w messageWriter, topic string, log *slog.Logger) *Publisher {
	return &Publisher{
		writer: w,
		topic:  topic,
		log:    logger.OrDefault(log).With("component", "events", "topic", topic),
	}
}

func (p *Publisher) Name() string { return "kafka" }

func (p *Publisher) Append(ctx context.Context, e topics.Entry) error {
	msg, err := BuildMessage(e)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish run %s: %w", e.RunID, err)
	}
	p.log.Debug("run published", "run_id", e.RunID, "size", len(msg.Value))
	return nil
}

// BuildMessage encodes e as a "run.completed" event keyed by its run ID.
func BuildMessage(e topics.Entry) (kafka.Message, error) {
	value, err := json.Marshal(RunEvent{Type: "run.completed", Entry: e})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal run event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(e.RunID),
		Value: value,
		Time:  e.Timestamp,
	}, nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
