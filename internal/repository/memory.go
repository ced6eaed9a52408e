package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/joseph-ayodele/notice-ingest/constants"
	"github.com/joseph-ayodele/notice-ingest/internal/common"
	"github.com/joseph-ayodele/notice-ingest/internal/entity"
)

// MemoryJobStore keeps jobs in process memory. Used by the CLI and tests.
type MemoryJobStore struct {
	mu     sync.Mutex
	jobs   map[string]*entity.ProcessingJob
	logger *slog.Logger
}

var _ JobStore = (*MemoryJobStore)(nil)

func NewMemoryJobStore(logger *slog.Logger) *MemoryJobStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryJobStore{jobs: make(map[string]*entity.ProcessingJob), logger: logger}
}

func (s *MemoryJobStore) Create(_ context.Context, job *entity.ProcessingJob) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("%w: job id is required", common.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("%w: job %s", common.ErrAlreadyExists, job.ID)
	}
	c := job.Clone()
	c.Status = constants.JobStatusPending
	c.CreatedAt = normalizeTime(job.CreatedAt)
	c.UpdatedAt = c.CreatedAt
	s.jobs[c.ID] = c
	job.Status, job.CreatedAt, job.UpdatedAt = c.Status, c.CreatedAt, c.UpdatedAt
	s.logger.Debug("job created", "job_id", c.ID)
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (*entity.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", common.ErrNotFound, id)
	}
	return j.Clone(), nil
}

// transition applies fn to the job when it is in status from.
func (s *MemoryJobStore) transition(id string, from constants.JobStatus, fn func(j *entity.ProcessingJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: job %s", common.ErrNotFound, id)
	}
	if j.Status != from {
		return fmt.Errorf("%w: job %s is %s, expected %s", common.ErrInvalidTransition, id, j.Status, from)
	}
	fn(j)
	j.UpdatedAt = normalizeTime(time.Time{})
	return nil
}

func (s *MemoryJobStore) MarkProcessing(_ context.Context, id string, at time.Time) error {
	return s.transition(id, constants.JobStatusPending, func(j *entity.ProcessingJob) {
		t := normalizeTime(at)
		j.Status = constants.JobStatusProcessing
		j.StartedAt = &t
	})
}

func (s *MemoryJobStore) SaveOCR(_ context.Context, id string, out entity.OCROutcome) error {
	return s.transition(id, constants.JobStatusProcessing, func(j *entity.ProcessingJob) {
		text, conf, pages := out.Text, out.Confidence, out.PageCount
		j.OCRText, j.OCRConfidence, j.PageCount = &text, &conf, &pages
	})
}

func (s *MemoryJobStore) Complete(_ context.Context, id string, out entity.ExtractionOutcome, at time.Time) error {
	return s.transition(id, constants.JobStatusProcessing, func(j *entity.ProcessingJob) {
		t := normalizeTime(at)
		j.Status = constants.JobStatusCompleted
		j.FinishedAt = &t
		if out.Fields != nil {
			j.ExtractedFields = append([]byte(nil), out.Fields...)
		}
		if out.ModelName != "" {
			m := out.ModelName
			j.ModelName = &m
		}
	})
}

func (s *MemoryJobStore) Fail(_ context.Context, id string, reason string, at time.Time) error {
	return s.transition(id, constants.JobStatusProcessing, func(j *entity.ProcessingJob) {
		t := normalizeTime(at)
		j.Status = constants.JobStatusFailed
		j.FinishedAt = &t
		j.FailureReason = &reason
	})
}

func (s *MemoryJobStore) List(_ context.Context, f ListFilter) ([]*entity.ProcessingJob, error) {
	s.mu.Lock()
	out := make([]*entity.ProcessingJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		if f.match(j) {
			out = append(out, j.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
