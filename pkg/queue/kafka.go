// Package queue hands outbound deliveries (email, push) to an external
// worker through Kafka.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Channels an outbound delivery can target.
const (
	ChannelEmail = "email"
	ChannelPush  = "push"
)

// Delivery is the record consumed by the mail/push workers.
type Delivery struct {
	Channel        string         `json:"channel"`
	UserID         string         `json:"user_id"`
	NotificationID string         `json:"notification_id,omitempty"`
	Type           string         `json:"type"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	ActionURL      string         `json:"action_url,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	Digest         []DigestItem   `json:"digest,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// DigestItem is one line of a daily/weekly email digest.
type DigestItem struct {
	NotificationID string    `json:"notification_id"`
	Type           string    `json:"type"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	ActionURL      string    `json:"action_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type Producer interface {
	Enqueue(ctx context.Context, deliveries ...Delivery) error
	Close() error
}

type kafkaProducer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewKafkaProducer builds a producer writing to topic. Messages are keyed by
// user id so that one user's deliveries stay ordered within a partition.
func NewKafkaProducer(brokers []string, topic string, logger *zap.Logger) Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Compression:  kafka.Snappy,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn(fmt.Sprintf(msg, args...))
		}),
	}

	return &kafkaProducer{writer: writer, logger: logger}
}

func (p *kafkaProducer) Enqueue(ctx context.Context, deliveries ...Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(deliveries))
	for _, d := range deliveries {
		payload, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal delivery: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(d.UserID),
			Value: payload,
			Headers: []kafka.Header{
				{Key: "channel", Value: []byte(d.Channel)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write deliveries: %w", err)
	}
	return nil
}

func (p *kafkaProducer) Close() error {
	return p.writer.Close()
}
