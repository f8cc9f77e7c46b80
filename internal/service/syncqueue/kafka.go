package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/houra-app/houra/internal/model"
)

// Envelope is the message body published for one queued mutation.
type Envelope struct {
	ItemID     string          `json:"itemId"`
	StudentID  string          `json:"studentId"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Operation  string          `json:"operation"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	QueuedAt   time.Time       `json:"queuedAt"`
}

// NewEnvelope builds the published form of item.
func NewEnvelope(item model.SyncQueueItem) Envelope {
	return Envelope{
		ItemID:     item.ID.String(),
		StudentID:  item.StudentID.String(),
		EntityType: string(item.EntityType),
		EntityID:   item.EntityID.String(),
		Operation:  string(item.Operation),
		Payload:    item.Payload,
		QueuedAt:   item.CreatedAt,
	}
}

// messageWriter is the subset of *kafka.Writer the uploader needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaUploader publishes queued mutations to a Kafka topic, keyed by entity
// id so updates to one record stay ordered within a partition.
type KafkaUploader struct {
	w       messageWriter
	timeout time.Duration
}

// NewKafkaUploader creates an uploader for a comma-separated broker list.
func NewKafkaUploader(brokers, topic string, timeout time.Duration) *KafkaUploader {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		WriteTimeout: timeout,
	}
	return &KafkaUploader{w: w, timeout: timeout}
}

// Upload publishes item and waits for the broker acknowledgement.
func (u *KafkaUploader) Upload(ctx context.Context, item model.SyncQueueItem) error {
	body, err := json.Marshal(NewEnvelope(item))
	if err != nil {
		return fmt.Errorf("syncqueue: encode %s: %w", item.ID, err)
	}
	msg := kafka.Message{
		Key:   []byte(item.EntityID.String()),
		Value: body,
		Headers: []kafka.Header{
			{Key: "operation", Value: []byte(item.Operation)},
			{Key: "entity_type", Value: []byte(item.EntityType)},
		},
		Time: time.Now(),
	}
	writeCtx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()
	if err := u.w.WriteMessages(writeCtx, msg); err != nil {
		return fmt.Errorf("syncqueue: publish %s: %w", item.ID, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (u *KafkaUploader) Close() error { return u.w.Close() }
