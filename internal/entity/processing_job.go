package entity

import (
	"encoding/json"
	"time"

	"github.com/joseph-ayodele/notice-ingest/constants"
)

// ProcessingJob is one notice document moving through the ingestion pipeline.
// The ID is owned by the calling system.
type ProcessingJob struct {
	ID              string              `json:"id"`
	SourceURL       *string             `json:"source_url,omitempty"`
	MimeType        string              `json:"mime_type"`
	Status          constants.JobStatus `json:"status"`
	OCRText         *string             `json:"ocr_text,omitempty"`
	OCRConfidence   *float64            `json:"ocr_confidence,omitempty"`
	PageCount       *int                `json:"page_count,omitempty"`
	ExtractedFields json.RawMessage     `json:"extracted_fields,omitempty"`
	ModelName       *string             `json:"model_name,omitempty"`
	FailureReason   *string             `json:"failure_reason,omitempty"`
	StartedAt       *time.Time          `json:"started_at,omitempty"`
	FinishedAt      *time.Time          `json:"finished_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// OCROutcome is what the OCR stage persists before extraction runs.
type OCROutcome struct {
	Text       string
	Confidence float64
	PageCount  int
}

// ExtractionOutcome is what the parse stage persists on success.
type ExtractionOutcome struct {
	Fields    json.RawMessage // nil when extraction was skipped
	ModelName string
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (j *ProcessingJob) Clone() *ProcessingJob {
	if j == nil {
		return nil
	}
	c := *j
	c.SourceURL = clonePtr(j.SourceURL)
	c.OCRText = clonePtr(j.OCRText)
	c.OCRConfidence = clonePtr(j.OCRConfidence)
	c.PageCount = clonePtr(j.PageCount)
	c.ModelName = clonePtr(j.ModelName)
	c.FailureReason = clonePtr(j.FailureReason)
	c.StartedAt = clonePtr(j.StartedAt)
	c.FinishedAt = clonePtr(j.FinishedAt)
	if j.ExtractedFields != nil {
		c.ExtractedFields = append(json.RawMessage(nil), j.ExtractedFields...)
	}
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
