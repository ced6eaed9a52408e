package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/notice-ingest/constants"
	"github.com/joseph-ayodele/notice-ingest/internal/entity"
	"github.com/joseph-ayodele/notice-ingest/internal/llm"
	"github.com/joseph-ayodele/notice-ingest/internal/repository"
)

// Sheet is the worksheet name of the export.
const Sheet = "Notices"

// Service is a tiny façade over the job store that produces XLSX bytes for exports.
type Service struct {
	jobs   repository.JobStore
	logger *slog.Logger
}

func NewService(jobs repository.JobStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, logger: logger}
}

var headers = []string{
	"Job ID",
	"Status",
	"Created",
	"Finished",
	"Pages",
	"OCR Confidence",
	"Notice Type",
	"Position",
	"Organization",
	"District",
	"Municipality",
	"Min Age",
	"Max Age",
	"Deadline",
	"Contact Phone",
	"Description",
	"Model",
	"Failure Reason",
	"Source URL",
}

// ExportJobsXLSX returns an XLSX workbook (as bytes) of jobs created in the window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> all jobs. An empty status matches every status.
func (s *Service) ExportJobsXLSX(ctx context.Context, status constants.JobStatus, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	filter := repository.ListFilter{Status: status}
	if from != nil {
		filter.From = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	}
	switch {
	case to != nil:
		filter.To = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	case from != nil:
		today := time.Now().UTC()
		filter.To = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	}

	jobs, err := s.jobs.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("export.xlsx.close_error", "error", err)
		}
	}()
	if index, _ := f.GetSheetIndex(Sheet); index == -1 {
		if _, err := f.NewSheet(Sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(Sheet)
	f.SetActiveSheet(activeIndex)
	_ = f.DeleteSheet("Sheet1")

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(Sheet, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		last, _ := excelize.CoordinatesToCellName(len(headers), 1)
		_ = f.SetCellStyle(Sheet, "A1", last, style)
	}

	for i, j := range jobs {
		if err := writeRow(f, i+2, j); err != nil {
			s.logger.Warn("export.xlsx.fields_decode_error", "job_id", j.ID, "error", err)
		}
	}

	_ = f.SetColWidth(Sheet, "A", "A", 38) // id
	_ = f.SetColWidth(Sheet, "B", "F", 14)
	_ = f.SetColWidth(Sheet, "G", "K", 24)
	_ = f.SetColWidth(Sheet, "P", "P", 60) // description
	_ = f.SetColWidth(Sheet, "R", "S", 48)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"status", string(status),
		"rows", len(jobs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// writeRow fills one row. The row is written even when the stored fields do
// not decode; the decode error is returned for logging.
func writeRow(f *excelize.File, row int, j *entity.ProcessingJob) error {
	write := func(col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(Sheet, cell, v)
	}

	var fields llm.NoticeFields
	var decodeErr error
	if len(j.ExtractedFields) > 0 {
		decodeErr = json.Unmarshal(j.ExtractedFields, &fields)
	}

	write(1, j.ID)
	write(2, string(j.Status))
	write(3, j.CreatedAt.UTC().Format(time.RFC3339))
	if j.FinishedAt != nil {
		write(4, j.FinishedAt.UTC().Format(time.RFC3339))
	}
	if j.PageCount != nil {
		write(5, *j.PageCount)
	}
	if j.OCRConfidence != nil {
		write(6, *j.OCRConfidence)
	}
	write(7, fields.NoticeType)
	write(8, fields.PositionTitle)
	write(9, fields.OrganizationType)
	write(10, fields.District)
	write(11, fields.Municipality)
	if fields.MinAge != nil {
		write(12, *fields.MinAge)
	}
	if fields.MaxAge != nil {
		write(13, *fields.MaxAge)
	}
	write(14, fields.Deadline)
	write(15, fields.ContactPhone)
	write(16, truncate(fields.NoticeDescription, 300))
	if j.ModelName != nil {
		write(17, *j.ModelName)
	}
	if j.FailureReason != nil {
		write(18, truncate(*j.FailureReason, 300))
	}
	if j.SourceURL != nil {
		write(19, *j.SourceURL)
	}
	return decodeErr
}

// truncate cuts s to n runes, keeping multi-byte scripts intact.
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
