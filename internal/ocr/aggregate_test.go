package ocr

import (
	"math"
	"strings"
	"testing"
)

func TestAggregateLabelsPDFPages(t *testing.T) {
	pages := []PageText{
		{PageNumber: 1, Text: "first page", Confidence: 0.80},
		{PageNumber: 2, Text: "second page", Confidence: 0.90},
	}
	got := Aggregate(pages, true)

	want := "--- Page 1 ---\nfirst page\n\n--- Page 2 ---\nsecond page"
	if got.FullText != want {
		t.Fatalf("expected %q, got %q", want, got.FullText)
	}
	if got.PageCount != 2 {
		t.Fatalf("expected 2 pages, got %d", got.PageCount)
	}
	if math.Abs(got.MeanConfidence-0.85) > 1e-9 {
		t.Fatalf("expected mean 0.85, got %f", got.MeanConfidence)
	}
}

func TestAggregateSinglePagePDFStillLabelled(t *testing.T) {
	got := Aggregate([]PageText{{PageNumber: 1, Text: "only", Confidence: 0.5}}, true)
	if got.FullText != "--- Page 1 ---\nonly" {
		t.Fatalf("unexpected text %q", got.FullText)
	}
}

func TestAggregateDirectImageHasNoLabel(t *testing.T) {
	got := Aggregate([]PageText{{PageNumber: 1, Text: "  सूचना notice  ", Confidence: 0.72}}, false)
	if strings.Contains(got.FullText, "--- Page") {
		t.Fatalf("direct image must not be labelled: %q", got.FullText)
	}
	if got.FullText != "सूचना notice" {
		t.Fatalf("unexpected text %q", got.FullText)
	}
	if got.PageCount != 1 || math.Abs(got.MeanConfidence-0.72) > 1e-9 {
		t.Fatalf("unexpected summary %+v", got)
	}
}

func TestAggregateEmpty(t *testing.T) {
	got := Aggregate(nil, true)
	if got.PageCount != 0 || got.MeanConfidence != 0 || got.FullText != "" {
		t.Fatalf("expected zero value, got %+v", got)
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	pages := []PageText{
		{PageNumber: 1, Text: "a", Confidence: 0.1},
		{PageNumber: 2, Text: "b", Confidence: 0.2},
		{PageNumber: 3, Text: "c", Confidence: 0.3},
	}
	first := Aggregate(pages, true)
	second := Aggregate(pages, true)
	if first != second {
		t.Fatalf("expected identical results, got %+v and %+v", first, second)
	}
	if first.MeanConfidence < 0 || first.MeanConfidence > 1 {
		t.Fatalf("mean out of range: %f", first.MeanConfidence)
	}
}
