package ingest

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/joseph-ayodele/notice-ingest/constants"
	"github.com/joseph-ayodele/notice-ingest/internal/tempfiles"
)

func TestBufferSourceWritesScopedFile(t *testing.T) {
	scope := tempfiles.NewManager(t.TempDir(), nil).Scope("job-1")
	data := []byte("%PDF-1.4 fake")

	doc, err := NewBufferSource(data, "application/pdf").Materialize(context.Background(), scope)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if doc.Format != constants.PDF {
		t.Fatalf("expected PDF format, got %q", doc.Format)
	}
	got, err := os.ReadFile(doc.Path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("expected buffer bytes on disk")
	}
	if paths := scope.Paths(); len(paths) != 1 || paths[0] != doc.Path {
		t.Fatalf("expected file registered with scope, got %v", paths)
	}
}

func TestBufferSourceRejects(t *testing.T) {
	scope := tempfiles.NewManager(t.TempDir(), nil).Scope("job-1")
	cases := []struct {
		name string
		src  *BufferSource
		want error
	}{
		{"unsupported mimetype", NewBufferSource([]byte("x"), "text/plain"), ErrUnsupportedMimeType},
		{"empty", NewBufferSource(nil, "image/png"), ErrEmptyDocument},
		{"too large", &BufferSource{data: make([]byte, 11), mimeType: "image/png", maxBytes: 10}, ErrTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.src.Materialize(context.Background(), scope)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestURLSourceDownloads(t *testing.T) {
	payload := []byte("\x89PNG fake image")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	scope := tempfiles.NewManager(t.TempDir(), nil).Scope("job-2")
	src := NewURLSource(srv.URL+"/files/notice", "", URLOptions{Timeout: 5 * time.Second})

	doc, err := src.Materialize(context.Background(), scope)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if doc.MimeType != "image/png" || doc.Format != constants.IMAGE {
		t.Fatalf("expected image/png IMAGE, got %s %s", doc.MimeType, doc.Format)
	}
	if doc.Size != int64(len(payload)) {
		t.Fatalf("expected %d bytes, got %d", len(payload), doc.Size)
	}
	if src.Ref() != srv.URL+"/files/notice" {
		t.Fatalf("unexpected ref %q", src.Ref())
	}
}

func TestURLSourceMimeTypeFromExtension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	scope := tempfiles.NewManager(t.TempDir(), nil).Scope("job-3")
	doc, err := NewURLSource(srv.URL+"/notice.PDF", "", URLOptions{}).Materialize(context.Background(), scope)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if doc.Format != constants.PDF {
		t.Fatalf("expected PDF from extension, got %q", doc.Format)
	}
}

func TestURLSourceFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing.pdf":
			http.NotFound(w, r)
		case "/big.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(make([]byte, 64))
		case "/slow.png":
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte("late"))
		}
	}))
	defer srv.Close()

	scope := tempfiles.NewManager(t.TempDir(), nil).Scope("job-4")

	if _, err := NewURLSource(srv.URL+"/missing.pdf", "", URLOptions{}).Materialize(context.Background(), scope); err == nil {
		t.Fatalf("expected error for 404")
	}
	_, err := NewURLSource(srv.URL+"/big.png", "", URLOptions{MaxBytes: 16}).Materialize(context.Background(), scope)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, err := NewURLSource(srv.URL+"/slow.png", "image/png", URLOptions{Timeout: 20 * time.Millisecond}).Materialize(context.Background(), scope); err == nil {
		t.Fatalf("expected timeout error")
	}
	if _, err := NewURLSource("ftp://example.com/x.pdf", "", URLOptions{}).Materialize(context.Background(), scope); err == nil {
		t.Fatalf("expected invalid url error")
	}
}
