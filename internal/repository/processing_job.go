package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/notice-ingest/constants"
	"github.com/joseph-ayodele/notice-ingest/internal/common"
	"github.com/joseph-ayodele/notice-ingest/internal/entity"
)

var jobColumns = []string{
	"id", "source_url", "mime_type", "status",
	"ocr_text", "ocr_confidence", "page_count", "extracted_fields",
	"model_name", "failure_reason",
	"started_at", "finished_at", "created_at", "updated_at",
}

type processingJobRepo struct {
	db  *DB
	log *slog.Logger
}

var _ JobStore = (*processingJobRepo)(nil)

// NewJobStore returns a JobStore backed by the given database.
func NewJobStore(db *DB, log *slog.Logger) JobStore {
	if log == nil {
		log = slog.Default()
	}
	return &processingJobRepo{db: db, log: log}
}

func (r *processingJobRepo) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.db.Dialect())
}

func (r *processingJobRepo) Create(ctx context.Context, job *entity.ProcessingJob) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("%w: job id is required", common.ErrInvalidInput)
	}
	now := normalizeTime(job.CreatedAt)
	b := r.builder()
	q, args := b.Insert(jobsTable).
		Columns("id", "source_url", "mime_type", "status", "created_at", "updated_at").
		Values(job.ID, nullString(job.SourceURL), job.MimeType, string(constants.JobStatusPending), now, now).
		Query()

	if err := r.db.Driver.Exec(ctx, q, args, nil); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: job %s", common.ErrAlreadyExists, job.ID)
		}
		r.log.Error("job create failed", "job_id", job.ID, "err", err)
		return fmt.Errorf("%w: create job: %w", common.ErrDatabase, err)
	}
	job.Status = constants.JobStatusPending
	job.CreatedAt, job.UpdatedAt = now, now
	r.log.Info("job created", "job_id", job.ID, "mime_type", job.MimeType)
	return nil
}

func (r *processingJobRepo) Get(ctx context.Context, id string) (*entity.ProcessingJob, error) {
	b := r.builder()
	q, args := b.Select(jobColumns...).
		From(entsql.Table(jobsTable)).
		Where(entsql.EQ("id", id)).
		Query()

	jobs, err := r.query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: job %s", common.ErrNotFound, id)
	}
	return jobs[0], nil
}

func (r *processingJobRepo) MarkProcessing(ctx context.Context, id string, at time.Time) error {
	t := normalizeTime(at)
	b := r.builder()
	u := b.Update(jobsTable).
		Set("status", string(constants.JobStatusProcessing)).
		Set("started_at", t).
		Set("updated_at", normalizeTime(time.Time{}))
	return r.transition(ctx, id, constants.JobStatusPending, u)
}

func (r *processingJobRepo) SaveOCR(ctx context.Context, id string, out entity.OCROutcome) error {
	b := r.builder()
	u := b.Update(jobsTable).
		Set("ocr_text", out.Text).
		Set("ocr_confidence", out.Confidence).
		Set("page_count", out.PageCount).
		Set("updated_at", normalizeTime(time.Time{}))
	return r.transition(ctx, id, constants.JobStatusProcessing, u)
}

func (r *processingJobRepo) Complete(ctx context.Context, id string, out entity.ExtractionOutcome, at time.Time) error {
	b := r.builder()
	u := b.Update(jobsTable).
		Set("status", string(constants.JobStatusCompleted)).
		Set("finished_at", normalizeTime(at)).
		Set("updated_at", normalizeTime(time.Time{}))
	if out.Fields != nil {
		u.Set("extracted_fields", string(out.Fields))
	}
	if out.ModelName != "" {
		u.Set("model_name", out.ModelName)
	}
	return r.transition(ctx, id, constants.JobStatusProcessing, u)
}

func (r *processingJobRepo) Fail(ctx context.Context, id string, reason string, at time.Time) error {
	b := r.builder()
	u := b.Update(jobsTable).
		Set("status", string(constants.JobStatusFailed)).
		Set("failure_reason", reason).
		Set("finished_at", normalizeTime(at)).
		Set("updated_at", normalizeTime(time.Time{}))
	return r.transition(ctx, id, constants.JobStatusProcessing, u)
}

func (r *processingJobRepo) List(ctx context.Context, f ListFilter) ([]*entity.ProcessingJob, error) {
	b := r.builder()
	sel := b.Select(jobColumns...).From(entsql.Table(jobsTable))

	var preds []*entsql.Predicate
	if f.Status != "" {
		preds = append(preds, entsql.EQ("status", string(f.Status)))
	}
	if !f.From.IsZero() {
		preds = append(preds, entsql.GTE("created_at", normalizeTime(f.From)))
	}
	if !f.To.IsZero() {
		preds = append(preds, entsql.LT("created_at", normalizeTime(f.To)))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	sel.OrderBy(entsql.Desc("created_at"), entsql.Asc("id"))
	if f.Limit > 0 {
		sel.Limit(f.Limit)
	}

	q, args := sel.Query()
	return r.query(ctx, q, args)
}

// transition runs u guarded by id and the expected prior status. When no row
// matches it tells a missing job apart from a job in the wrong status.
func (r *processingJobRepo) transition(ctx context.Context, id string, from constants.JobStatus, u *entsql.UpdateBuilder) error {
	q, args := u.Where(entsql.And(entsql.EQ("id", id), entsql.EQ("status", string(from)))).Query()

	var res sql.Result
	if err := r.db.Driver.Exec(ctx, q, args, &res); err != nil {
		r.log.Error("job update failed", "job_id", id, "err", err)
		return fmt.Errorf("%w: update job: %w", common.ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %w", common.ErrDatabase, err)
	}
	if n > 0 {
		return nil
	}

	cur, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s is %s, expected %s", common.ErrInvalidTransition, id, cur.Status, from)
}

func (r *processingJobRepo) query(ctx context.Context, q string, args []any) ([]*entity.ProcessingJob, error) {
	rows := &entsql.Rows{}
	if err := r.db.Driver.Query(ctx, q, args, rows); err != nil {
		r.log.Error("job query failed", "err", err)
		return nil, fmt.Errorf("%w: query jobs: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*entity.ProcessingJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan job: %w", common.ErrDatabase, err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate jobs: %w", common.ErrDatabase, err)
	}
	return out, nil
}

func scanJob(rows *entsql.Rows) (*entity.ProcessingJob, error) {
	var (
		j                          entity.ProcessingJob
		status                     string
		sourceURL, ocrText, fields sql.NullString
		modelName, failureReason   sql.NullString
		confidence                 sql.NullFloat64
		pageCount                  sql.NullInt64
		startedAt, finishedAt      sql.NullTime
	)
	if err := rows.Scan(
		&j.ID, &sourceURL, &j.MimeType, &status,
		&ocrText, &confidence, &pageCount, &fields,
		&modelName, &failureReason,
		&startedAt, &finishedAt, &j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	j.Status = constants.JobStatus(status)
	j.SourceURL = fromNullString(sourceURL)
	j.OCRText = fromNullString(ocrText)
	j.ModelName = fromNullString(modelName)
	j.FailureReason = fromNullString(failureReason)
	if confidence.Valid {
		j.OCRConfidence = &confidence.Float64
	}
	if pageCount.Valid {
		n := int(pageCount.Int64)
		j.PageCount = &n
	}
	if fields.Valid && fields.String != "" {
		j.ExtractedFields = json.RawMessage(fields.String)
	}
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		j.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		j.FinishedAt = &t
	}
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// isUniqueViolation matches Postgres SQLSTATE 23505 and SQLite's constraint text.
func isUniqueViolation(err error) bool {
	var coded interface{ SQLState() string }
	if errors.As(err, &coded) && coded.SQLState() == "23505" {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "SQLSTATE 23505")
}
