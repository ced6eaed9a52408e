// Package events publishes job outcome notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/joseph-ayodele/notice-ingest/constants"
	"github.com/joseph-ayodele/notice-ingest/internal/entity"
)

// JobEvent is emitted once a job reaches a terminal status.
type JobEvent struct {
	JobID         string              `json:"job_id"`
	Status        constants.JobStatus `json:"status"`
	PageCount     int                 `json:"page_count"`
	OCRConfidence *float64            `json:"ocr_confidence,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
	ModelName     string              `json:"model_name,omitempty"`
	FinishedAt    time.Time           `json:"finished_at"`
}

// FromJob builds the event for a job record.
func FromJob(j *entity.ProcessingJob) JobEvent {
	ev := JobEvent{JobID: j.ID, Status: j.Status, OCRConfidence: j.OCRConfidence}
	if j.PageCount != nil {
		ev.PageCount = *j.PageCount
	}
	if j.FailureReason != nil {
		ev.FailureReason = *j.FailureReason
	}
	if j.ModelName != nil {
		ev.ModelName = *j.ModelName
	}
	if j.FinishedAt != nil {
		ev.FinishedAt = *j.FinishedAt
	} else {
		ev.FinishedAt = time.Now().UTC()
	}
	return ev
}

type Publisher interface {
	Publish(ctx context.Context, ev JobEvent) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, JobEvent) error { return nil }
func (NopPublisher) Close() error                            { return nil }

// MessageWriter is the part of *kafka.Writer we use.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by job id so one job's events stay ordered.
type KafkaPublisher struct {
	w      MessageWriter
	topic  string
	logger *slog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return NewKafkaPublisherWithWriter(w, topic, logger)
}

func NewKafkaPublisherWithWriter(w MessageWriter, topic string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{w: w, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev JobEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.JobID),
		Value: value,
		Time:  ev.FinishedAt,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(ev.Status)},
		},
	})
	if err != nil {
		p.logger.Error("events.publish.failed", "job_id", ev.JobID, "topic", p.topic, "error", err)
		return fmt.Errorf("write kafka message: %w", err)
	}
	p.logger.Debug("events.publish.ok", "job_id", ev.JobID, "topic", p.topic, "status", ev.Status)
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }
