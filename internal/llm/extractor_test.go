package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/joseph-ayodele/notice-ingest/internal/common"
)

type stubGenerator struct {
	output string
	err    error
	delay  time.Duration
	calls  int
	prompt string
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.calls++
	s.prompt = prompt
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.output, s.err
}

func (s *stubGenerator) Model() string { return "stub-model" }

func TestExtractor_ParsesWrappedJSON(t *testing.T) {
	gen := &stubGenerator{output: "Sure! Here you go:\n```json\n" +
		`{"notice_type":"Job Vacancy","position_title":"Health Assistant","min_age":18,"max_age":35,"deadline":"2024-07-01","requires_license":true}` +
		"\n```"}
	ex, err := NewExtractor(gen, ExtractorConfig{}, nil)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}

	fields, normalized, err := ex.ExtractFields(context.Background(), "स्वास्थ्य सहायक पद रिक्त")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("expected exactly one model call, got %d", gen.calls)
	}
	if !strings.Contains(gen.prompt, "स्वास्थ्य सहायक पद रिक्त") {
		t.Fatalf("expected OCR text in prompt")
	}
	if fields.NoticeType != "Job Vacancy" || fields.PositionTitle != "Health Assistant" {
		t.Fatalf("unexpected fields: %+v", fields)
	}
	if fields.MinAge == nil || *fields.MinAge != 18 || fields.MaxAge == nil || *fields.MaxAge != 35 {
		t.Fatalf("expected ages 18-35, got %v-%v", fields.MinAge, fields.MaxAge)
	}
	if !fields.RequiresLicense || fields.Deadline != "2024-07-01" {
		t.Fatalf("unexpected license/deadline: %+v", fields)
	}
	if fields.MinExperienceYears != nil {
		t.Fatalf("expected nil experience, got %v", *fields.MinExperienceYears)
	}
	if len(normalized) == 0 {
		t.Fatalf("expected normalized JSON")
	}
	if ex.Model() != "stub-model" {
		t.Fatalf("expected model name passthrough, got %q", ex.Model())
	}
}

func TestExtractor_NoJSONIsParseFailure(t *testing.T) {
	gen := &stubGenerator{output: "I cannot help with that."}
	ex, err := NewExtractor(gen, ExtractorConfig{}, nil)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}

	_, _, err = ex.ExtractFields(context.Background(), "text")
	if !errors.Is(err, common.ErrExtractionParse) {
		t.Fatalf("expected ErrExtractionParse, got %v", err)
	}
	var se *common.StageError
	if !errors.As(err, &se) {
		t.Fatalf("expected *common.StageError, got %T", err)
	}
	if se.RawOutput != "I cannot help with that." {
		t.Fatalf("expected raw output to be kept, got %q", se.RawOutput)
	}
	if se.Stage != StageExtract {
		t.Fatalf("expected stage %q, got %q", StageExtract, se.Stage)
	}
}

func TestExtractor_CallFailure(t *testing.T) {
	boom := errors.New("503 from provider")
	ex, err := NewExtractor(&stubGenerator{err: boom}, ExtractorConfig{}, nil)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}

	_, _, err = ex.ExtractFields(context.Background(), "text")
	if !errors.Is(err, common.ErrExtractionCall) {
		t.Fatalf("expected ErrExtractionCall, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
}

func TestExtractor_Timeout(t *testing.T) {
	gen := &stubGenerator{output: "{}", delay: time.Second}
	ex, err := NewExtractor(gen, ExtractorConfig{Timeout: 20 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}

	_, _, err = ex.ExtractFields(context.Background(), "text")
	if !errors.Is(err, common.ErrExtractionCall) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected call failure with deadline exceeded, got %v", err)
	}
}

func TestNewExtractor_RequiresGenerator(t *testing.T) {
	if _, err := NewExtractor(nil, ExtractorConfig{}, nil); err == nil {
		t.Fatalf("expected error for nil generator")
	}
}
