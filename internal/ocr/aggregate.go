package ocr

import (
	"strconv"
	"strings"
)

// PageText is the OCR output for one page, confidence in 0..1.
type PageText struct {
	PageNumber int
	Text       string
	Confidence float64
}

// Aggregated is the document-level OCR result.
type Aggregated struct {
	FullText       string
	MeanConfidence float64
	PageCount      int
}

// Aggregate joins pages in the given order. Labeled documents (PDFs, even
// single-page ones) get a "--- Page N ---" header per block; direct images do not.
// MeanConfidence is 0 for an empty input.
func Aggregate(pages []PageText, labeled bool) Aggregated {
	var b strings.Builder
	var sum float64
	for i, p := range pages {
		if labeled {
			b.WriteString("--- Page ")
			b.WriteString(strconv.Itoa(p.PageNumber))
			b.WriteString(" ---\n")
			b.WriteString(p.Text)
			b.WriteString("\n\n")
		} else {
			if i > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(p.Text)
		}
		sum += p.Confidence
	}

	out := Aggregated{
		FullText:  strings.TrimSpace(b.String()),
		PageCount: len(pages),
	}
	if len(pages) > 0 {
		out.MeanConfidence = sum / float64(len(pages))
	}
	return out
}
