package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/joseph-ayodele/notice-ingest/constants"
)

// Document is a source resolved to a local file the rasterizer can read.
type Document struct {
	Path     string
	MimeType string
	Format   string // constants.PDF | constants.IMAGE
	Size     int64
}

// TempScope issues job-scoped scratch paths. *tempfiles.Scope implements it.
type TempScope interface {
	Acquire(prefix, ext string) (string, error)
}

// Source is anything that can produce the document bytes for one job.
// Buffers and URLs are the two adapters; the pipeline only sees Documents.
type Source interface {
	Materialize(ctx context.Context, scope TempScope) (Document, error)
	// Ref is the persisted source reference (URL), empty for buffers.
	Ref() string
	// DeclaredMimeType may be empty when the mimetype is only known after fetching.
	DeclaredMimeType() string
}

var (
	ErrUnsupportedMimeType = errors.New("unsupported mimetype")
	ErrTooLarge            = errors.New("document exceeds size limit")
	ErrEmptyDocument       = errors.New("document is empty")
)

// BufferSource wraps bytes the caller already holds (synchronous upload path).
type BufferSource struct {
	data     []byte
	mimeType string
	maxBytes int64
}

func NewBufferSource(data []byte, mimeType string) *BufferSource {
	return &BufferSource{data: data, mimeType: constants.NormalizeMimeType(mimeType), maxBytes: constants.MaxDocumentBytes}
}

func (b *BufferSource) Ref() string              { return "" }
func (b *BufferSource) DeclaredMimeType() string { return b.mimeType }

func (b *BufferSource) Materialize(_ context.Context, scope TempScope) (Document, error) {
	format := constants.MapMimeToFormat(b.mimeType)
	if format == "" {
		return Document{}, fmt.Errorf("%w: %q", ErrUnsupportedMimeType, b.mimeType)
	}
	if len(b.data) == 0 {
		return Document{}, ErrEmptyDocument
	}
	if int64(len(b.data)) > b.maxBytes {
		return Document{}, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(b.data), b.maxBytes)
	}
	p, err := scope.Acquire("temp", constants.ExtForMimeType(b.mimeType))
	if err != nil {
		return Document{}, err
	}
	if err := os.WriteFile(p, b.data, 0o600); err != nil {
		return Document{}, fmt.Errorf("write buffer: %w", err)
	}
	return Document{Path: p, MimeType: b.mimeType, Format: format, Size: int64(len(b.data))}, nil
}

// URLOptions bounds a download.
type URLOptions struct {
	Client   *http.Client
	Timeout  time.Duration
	MaxBytes int64
	Logger   *slog.Logger
}

// URLSource streams a remote document to a temp file (asynchronous path).
type URLSource struct {
	rawURL   string
	mimeType string
	opts     URLOptions
}

func NewURLSource(rawURL, mimeType string, opts URLOptions) *URLSource {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = constants.MaxDocumentBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &URLSource{rawURL: rawURL, mimeType: constants.NormalizeMimeType(mimeType), opts: opts}
}

func (u *URLSource) Ref() string              { return u.rawURL }
func (u *URLSource) DeclaredMimeType() string { return u.mimeType }

func (u *URLSource) Materialize(ctx context.Context, scope TempScope) (Document, error) {
	parsed, err := url.Parse(u.rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Document{}, fmt.Errorf("invalid source url %q", u.rawURL)
	}
	if u.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.rawURL, nil)
	if err != nil {
		return Document{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := u.opts.Client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("download: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			u.opts.Logger.Warn("ingest.download.body_close_error", "url", u.rawURL, "error", err)
		}
	}(resp.Body)

	if resp.StatusCode/100 != 2 {
		return Document{}, fmt.Errorf("download: non-2xx status: %d", resp.StatusCode)
	}
	if resp.ContentLength > u.opts.MaxBytes {
		return Document{}, fmt.Errorf("%w: content-length %d > %d bytes", ErrTooLarge, resp.ContentLength, u.opts.MaxBytes)
	}

	mt := u.resolveMimeType(resp.Header.Get("Content-Type"), parsed.Path)
	format := constants.MapMimeToFormat(mt)
	if format == "" {
		return Document{}, fmt.Errorf("%w: %q", ErrUnsupportedMimeType, mt)
	}

	p, err := scope.Acquire("notice", constants.ExtForMimeType(mt))
	if err != nil {
		return Document{}, err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return Document{}, fmt.Errorf("create download file: %w", err)
	}
	n, copyErr := io.Copy(f, io.LimitReader(resp.Body, u.opts.MaxBytes+1))
	closeErr := f.Close()
	if copyErr != nil {
		return Document{}, fmt.Errorf("download body: %w", copyErr)
	}
	if closeErr != nil {
		return Document{}, fmt.Errorf("close download file: %w", closeErr)
	}
	if n > u.opts.MaxBytes {
		return Document{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, u.opts.MaxBytes)
	}
	if n == 0 {
		return Document{}, ErrEmptyDocument
	}

	u.opts.Logger.Info("ingest.download.ok",
		"url", u.rawURL,
		"mime_type", mt,
		"bytes", n,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Document{Path: p, MimeType: mt, Format: format, Size: n}, nil
}

// resolveMimeType: declared mimetype, then an accepted Content-Type, then the URL extension.
func (u *URLSource) resolveMimeType(contentType, urlPath string) string {
	if u.mimeType != "" {
		return u.mimeType
	}
	if ct := constants.NormalizeMimeType(contentType); constants.MapMimeToFormat(ct) != "" {
		return ct
	}
	if mt := constants.MimeTypeFromExt(path.Ext(urlPath)); mt != "" {
		return mt
	}
	return constants.NormalizeMimeType(contentType)
}
