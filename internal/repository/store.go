package repository

import (
	"context"
	"time"

	"github.com/joseph-ayodele/notice-ingest/constants"
	"github.com/joseph-ayodele/notice-ingest/internal/entity"
)

// JobStore persists ProcessingJob records. Every status change is a guarded
// transition: it only applies when the row is in the expected prior status.
type JobStore interface {
	// Create inserts a new pending job. ErrAlreadyExists if the id is taken.
	Create(ctx context.Context, job *entity.ProcessingJob) error
	Get(ctx context.Context, id string) (*entity.ProcessingJob, error)
	// MarkProcessing moves pending -> processing and stamps startedAt.
	MarkProcessing(ctx context.Context, id string, at time.Time) error
	// SaveOCR records text, confidence and page count together on a processing job.
	SaveOCR(ctx context.Context, id string, out entity.OCROutcome) error
	// Complete moves processing -> completed, storing fields when present.
	Complete(ctx context.Context, id string, out entity.ExtractionOutcome, at time.Time) error
	// Fail moves processing -> failed with a reason. OCR columns are untouched.
	Fail(ctx context.Context, id string, reason string, at time.Time) error
	List(ctx context.Context, f ListFilter) ([]*entity.ProcessingJob, error)
}

// ListFilter narrows List by status and creation window. Zero values match all.
type ListFilter struct {
	Status constants.JobStatus
	From   time.Time // inclusive
	To     time.Time // exclusive
	Limit  int       // 0 = no limit
}

func (f ListFilter) match(j *entity.ProcessingJob) bool {
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && j.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !j.CreatedAt.Before(f.To) {
		return false
	}
	return true
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Truncate(time.Microsecond)
}
