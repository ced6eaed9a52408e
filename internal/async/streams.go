package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type StreamsConfig struct {
	Addr        string
	Password    string
	DB          int
	Stream      string
	DLQStream   string
	Group       string
	Consumer    string
	MaxAttempts int
}

// StreamsQueue carries jobs between processes over a Redis Stream consumer
// group. Failed deliveries are re-added with a bumped attempt counter and end
// up in the DLQ stream after MaxAttempts.
type StreamsQueue struct {
	client      *redis.Client
	stream      string
	dlqStream   string
	group       string
	consumer    string
	maxAttempts int
	logger      *slog.Logger

	// readGroup is one blocking XREADGROUP call; retryDelay is the first
	// pause after a failed read, doubled per consecutive failure.
	readGroup  func(ctx context.Context) ([]redis.XStream, error)
	retryDelay time.Duration
}

// maxRetryDelay caps the pause between failed reads.
const maxRetryDelay = 30 * time.Second

func NewStreamsQueue(ctx context.Context, cfg StreamsConfig, logger *slog.Logger) (*StreamsQueue, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Stream == "" {
		cfg.Stream = "notice_jobs"
	}
	if cfg.DLQStream == "" {
		cfg.DLQStream = cfg.Stream + "_dlq"
	}
	if cfg.Group == "" {
		cfg.Group = "notice_workers"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "noticed-1"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	q := &StreamsQueue{
		client:      client,
		stream:      cfg.Stream,
		dlqStream:   cfg.DLQStream,
		group:       cfg.Group,
		consumer:    cfg.Consumer,
		maxAttempts: cfg.MaxAttempts,
		logger:      logger,
		retryDelay:  time.Second,
	}
	q.readGroup = q.xreadGroup
	if err := q.ensureGroup(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return q, nil
}

func (q *StreamsQueue) Close() error {
	return q.client.Close()
}

func (q *StreamsQueue) Enqueue(ctx context.Context, job Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	_, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: jobValues(job),
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue to stream: %w", err)
	}
	q.logger.Info("queued job on stream", "job_id", job.JobID, "stream", q.stream, "attempt", job.Attempt)
	return nil
}

// Consume reads the group until ctx ends, handing each job to handler. Read
// failures (Redis restarts, network errors) are logged and retried with
// backoff; only ctx ending stops the loop.
func (q *StreamsQueue) Consume(ctx context.Context, handler func(context.Context, Job) error) error {
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := q.readGroup(ctx)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				failures = 0
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			failures++
			delay := q.backoff(failures)
			q.logger.Warn("stream read failed, retrying",
				"stream", q.stream, "failures", failures, "retry_in", delay, "error", err)
			// a restarted Redis without persistence has lost the group
			if strings.Contains(err.Error(), "NOGROUP") {
				if gerr := q.ensureGroup(ctx); gerr != nil {
					q.logger.Warn("recreate stream group failed", "stream", q.stream, "error", gerr)
				}
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		failures = 0

		for _, stream := range streams {
			for _, item := range stream.Messages {
				q.handle(ctx, item, handler)
			}
		}
	}
}

func (q *StreamsQueue) xreadGroup(ctx context.Context) ([]redis.XStream, error) {
	return q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    10,
		Block:    5 * time.Second,
	}).Result()
}

func (q *StreamsQueue) backoff(failures int) time.Duration {
	d := q.retryDelay
	if d <= 0 {
		d = time.Second
	}
	for i := 1; i < failures && d < maxRetryDelay; i++ {
		d *= 2
	}
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}

func (q *StreamsQueue) handle(ctx context.Context, item redis.XMessage, handler func(context.Context, Job) error) {
	job, parseErr := parseStreamMessage(item)
	if parseErr != nil {
		q.logger.Error("stream message rejected", "stream_id", item.ID, "error", parseErr)
		q.deadLetter(ctx, job, item, parseErr.Error())
		q.ackAndDelete(ctx, item.ID)
		return
	}

	handleErr := handler(ctx, job)
	if handleErr == nil {
		q.ackAndDelete(ctx, item.ID)
		return
	}

	job.Attempt++
	if job.Attempt >= q.maxAttempts {
		q.logger.Error("job exhausted retries", "job_id", job.JobID, "attempts", job.Attempt, "error", handleErr)
		q.deadLetter(ctx, job, item, handleErr.Error())
		q.ackAndDelete(ctx, item.ID)
		return
	}

	if requeueErr := q.Enqueue(ctx, job); requeueErr != nil {
		q.deadLetter(ctx, job, item, fmt.Sprintf("requeue failed: %v", requeueErr))
	}
	q.ackAndDelete(ctx, item.ID)
}

func (q *StreamsQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return fmt.Errorf("ensure stream group: %w", err)
}

func (q *StreamsQueue) ackAndDelete(ctx context.Context, streamID string) {
	if err := q.client.XAck(ctx, q.stream, q.group, streamID).Err(); err != nil {
		q.logger.Warn("xack failed", "stream_id", streamID, "error", err)
		return
	}
	if err := q.client.XDel(ctx, q.stream, streamID).Err(); err != nil {
		q.logger.Warn("xdel failed", "stream_id", streamID, "error", err)
	}
}

func (q *StreamsQueue) deadLetter(ctx context.Context, job Job, item redis.XMessage, errorMessage string) {
	values := jobValues(job)
	values["stream_id"] = item.ID
	values["error"] = errorMessage
	values["moved_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.dlqStream, Values: values}).Result(); err != nil {
		q.logger.Error("send to dlq failed", "stream_id", item.ID, "error", err)
	}
}

func jobValues(job Job) map[string]any {
	return map[string]any{
		"job_id":       job.JobID,
		"source_url":   job.SourceURL,
		"local_path":   job.LocalPath,
		"mime_type":    job.MimeType,
		"trace_id":     job.TraceID,
		"attempt":      job.Attempt,
		"requested_at": job.SubmittedAt.UTC().Format(time.RFC3339Nano),
	}
}

func parseStreamMessage(item redis.XMessage) (Job, error) {
	getString := func(key string, required bool) (string, error) {
		value, ok := item.Values[key]
		if !ok {
			if required {
				return "", fmt.Errorf("missing field %s", key)
			}
			return "", nil
		}
		switch casted := value.(type) {
		case string:
			return casted, nil
		case []byte:
			return string(casted), nil
		default:
			return fmt.Sprintf("%v", casted), nil
		}
	}

	jobID, err := getString("job_id", true)
	if err != nil {
		return Job{}, err
	}
	job := Job{JobID: jobID}

	if job.SourceURL, err = getString("source_url", false); err != nil {
		return job, err
	}
	if job.LocalPath, err = getString("local_path", false); err != nil {
		return job, err
	}
	if job.MimeType, err = getString("mime_type", false); err != nil {
		return job, err
	}
	if job.TraceID, err = getString("trace_id", false); err != nil {
		return job, err
	}

	attemptString, err := getString("attempt", true)
	if err != nil {
		return job, err
	}
	if job.Attempt, err = strconv.Atoi(attemptString); err != nil {
		return job, fmt.Errorf("invalid attempt: %w", err)
	}

	requestedAtString, err := getString("requested_at", true)
	if err != nil {
		return job, err
	}
	if job.SubmittedAt, err = time.Parse(time.RFC3339Nano, requestedAtString); err != nil {
		return job, fmt.Errorf("invalid requested_at: %w", err)
	}

	if err := job.validate(); err != nil {
		return job, err
	}
	return job, nil
}
