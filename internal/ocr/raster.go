package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/notice-ingest/constants"
	"github.com/joseph-ayodele/notice-ingest/internal/ingest"
)

// PageImage is one rasterised page on disk. Numbering starts at 1.
type PageImage struct {
	Number int
	Path   string
}

// PageResult is either a page or the end of the document. Reason is set when
// the end was caused by a render failure rather than running out of pages.
type PageResult struct {
	Page          PageImage
	EndOfDocument bool
	Reason        error
}

func pageOK(p PageImage) PageResult { return PageResult{Page: p} }
func endOfDocument(reason error) PageResult { return PageResult{EndOfDocument: true, Reason: reason} }

// PageCursor yields pages lazily, in order. After the first EndOfDocument
// every later call returns EndOfDocument too.
type PageCursor interface {
	Next(ctx context.Context) PageResult
}

// Rasterizer turns a document into a page sequence. Images pass through untouched;
// PDFs are rendered one page per Next call with pdftoppm.
type Rasterizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewRasterizer(cfg Config, runner Runner, logger *slog.Logger) *Rasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	return &Rasterizer{cfg: cfg.WithDefaults(), runner: runner, logger: logger}
}

// Open starts a cursor over doc. Rendered pages are acquired from scope so the
// caller's cleanup removes them.
func (r *Rasterizer) Open(doc ingest.Document, scope ingest.TempScope) (PageCursor, error) {
	switch doc.Format {
	case constants.IMAGE:
		return &imageCursor{path: doc.Path}, nil
	case constants.PDF:
		return &pdfCursor{r: r, doc: doc, scope: scope}, nil
	default:
		return nil, fmt.Errorf("unsupported document format %q (%s)", doc.Format, doc.MimeType)
	}
}

type imageCursor struct {
	path string
	done bool
}

func (c *imageCursor) Next(context.Context) PageResult {
	if c.done {
		return endOfDocument(nil)
	}
	c.done = true
	return pageOK(PageImage{Number: 1, Path: c.path})
}

type pdfCursor struct {
	r     *Rasterizer
	doc   ingest.Document
	scope ingest.TempScope
	next  int
	ended bool
}

var errPageCap = errors.New("page limit reached")

func (c *pdfCursor) Next(ctx context.Context) PageResult {
	if c.ended {
		return endOfDocument(nil)
	}
	if c.next == 0 {
		c.next = 1
	}
	n := c.next
	if c.r.cfg.MaxPages > 0 && n > c.r.cfg.MaxPages {
		return c.end(n, errPageCap)
	}
	if err := ctx.Err(); err != nil {
		return c.end(n, err)
	}

	out, err := c.scope.Acquire("page-"+strconv.Itoa(n), ".png")
	if err != nil {
		return c.end(n, err)
	}
	root := strings.TrimSuffix(out, ".png")

	// pdftoppm -f N -l N -r 300 -png -singlefile <in.pdf> <root>  => <root>.png
	page := strconv.Itoa(n)
	_, errb, err := c.r.runner.Run(ctx, c.r.cfg.Pdftoppm,
		"-f", page, "-l", page,
		"-r", strconv.Itoa(c.r.cfg.DPI),
		"-png", "-singlefile",
		c.doc.Path, root,
	)
	if err != nil {
		return c.end(n, fmt.Errorf("pdftoppm page %d: %w: %s", n, err, truncate(strings.TrimSpace(string(errb)), 512)))
	}
	if _, err := os.Stat(out); err != nil {
		return c.end(n, fmt.Errorf("pdftoppm page %d produced no image: %w", n, err))
	}
	if err := BoundToEnvelope(out, c.r.cfg.MaxWidth, c.r.cfg.MaxHeight); err != nil {
		return c.end(n, fmt.Errorf("bound page %d: %w", n, err))
	}

	c.next++
	c.r.logger.Debug("ocr.raster.page_ok", "page", n, "path", out)
	return pageOK(PageImage{Number: n, Path: out})
}

func (c *pdfCursor) end(n int, reason error) PageResult {
	c.ended = true
	c.r.logger.Debug("ocr.raster.end", "page", n, "reason", reason)
	return endOfDocument(reason)
}
