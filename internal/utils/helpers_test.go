package utils

import (
	"testing"
	"time"
)

func TestParseYMD(t *testing.T) {
	got, err := ParseYMD("2024-07-01")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if _, err := ParseYMD("01/07/2024"); err == nil {
		t.Fatalf("expected an error for a non ISO date")
	}
}

func TestIsHidden(t *testing.T) {
	cases := map[string]bool{
		"/inbox/.notice.pdf.part": true,
		"/inbox/.cache":           true,
		"/inbox/notice.pdf":       false,
		".":                       false,
	}
	for path, want := range cases {
		if got := IsHidden(path); got != want {
			t.Fatalf("IsHidden(%q): expected %v, got %v", path, want, got)
		}
	}
}
