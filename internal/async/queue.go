package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/notice-ingest/internal/common"
	"github.com/joseph-ayodele/notice-ingest/internal/entity"
)

// Job is one asynchronous-after-upload request. Exactly one of SourceURL and
// LocalPath is set; LocalPath is only meaningful inside this process.
type Job struct {
	JobID       string
	SourceURL   string
	LocalPath   string
	MimeType    string
	SubmittedAt time.Time
	TraceID     string
	Attempt     int
}

func (j Job) validate() error {
	if j.JobID == "" {
		return fmt.Errorf("%w: job id is required", common.ErrInvalidInput)
	}
	if (j.SourceURL == "") == (j.LocalPath == "") {
		return fmt.Errorf("%w: job %s needs exactly one of source url and local path", common.ErrInvalidInput, j.JobID)
	}
	return nil
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// ErrQueueClosed is returned by Enqueue after Shutdown started.
var ErrQueueClosed = errors.New("queue is shutting down")

// JobProcessor is the part of *pipeline.Processor the workers drive.
type JobProcessor interface {
	ProcessURL(ctx context.Context, jobID, url, mimeType string) (*entity.ProcessingJob, error)
	ProcessBuffer(ctx context.Context, jobID string, data []byte, mimeType string) (*entity.ProcessingJob, error)
}

// RunJob processes one job under timeout. A job that reached a terminal status
// (even failed) is done and returns nil; only errors that left the job
// unfinished, like a store outage, are returned for a retry.
func RunJob(ctx context.Context, proc JobProcessor, job Job, timeout time.Duration, logger *slog.Logger) error {
	if err := job.validate(); err != nil {
		return err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if job.TraceID != "" {
		ctx = common.WithRequestID(ctx, job.TraceID)
	}

	var (
		res *entity.ProcessingJob
		err error
	)
	if job.LocalPath != "" {
		data, readErr := os.ReadFile(job.LocalPath)
		if readErr != nil {
			return fmt.Errorf("read %s: %w", job.LocalPath, readErr)
		}
		res, err = proc.ProcessBuffer(ctx, job.JobID, data, job.MimeType)
	} else {
		res, err = proc.ProcessURL(ctx, job.JobID, job.SourceURL, job.MimeType)
	}

	switch {
	case err == nil:
		logger.Info("processed job successfully", "job_id", job.JobID, "status", res.Status)
		return nil
	case res != nil && res.Status.IsTerminal():
		logger.Warn("job finished as failed", "job_id", job.JobID, "reason", common.FailureReason(err))
		return nil
	case errors.Is(err, common.ErrInvalidTransition):
		logger.Warn("job already handled, skipping", "job_id", job.JobID, "error", err)
		return nil
	default:
		logger.Error("processing failed", "job_id", job.JobID, "error", err)
		return err
	}
}
