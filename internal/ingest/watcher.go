package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joseph-ayodele/notice-ingest/constants"
	"github.com/joseph-ayodele/notice-ingest/internal/utils"
)

type WatchConfig struct {
	Roots       []string      // directories to watch (recursive)
	InitialScan bool          // if true, walk roots and emit existing files
	Debounce    time.Duration // coalesce rapid write bursts before emitting
	Logger      *slog.Logger
}

// InboxFile is a dropped document ready to be submitted as a job.
type InboxFile struct {
	Path     string
	MimeType string
}

// StartWatcher emits accepted documents created in the roots. The channels are
// closed when ctx is done.
func StartWatcher(ctx context.Context, cfg WatchConfig) (<-chan InboxFile, <-chan error, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		logger.Error("ingest.watch.start_failed", "error", "no roots provided")
		return nil, nil, errors.New("no roots provided")
	}
	evCh := make(chan InboxFile, 256)
	errCh := make(chan error, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("ingest.watch.create_failed", "error", err)
		return nil, nil, err
	}

	var initial []InboxFile
	addDir := func(root string) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if cfg.InitialScan {
				if f, ok := accepted(path); ok {
					initial = append(initial, f)
				}
			}
			return nil
		})
	}
	for _, r := range cfg.Roots {
		if err := addDir(r); err != nil {
			logger.Error("ingest.watch.add_root_failed", "root", r, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}

	go func() {
		defer close(errCh)
		defer close(evCh)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("ingest.watch.close_failed", "error", err)
			}
		}()

		emit := func(f InboxFile) bool {
			select {
			case evCh <- f:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, f := range initial {
			if !emit(f) {
				return
			}
		}

		var (
			mu      sync.Mutex
			pending = map[string]InboxFile{}
			ready   = make(chan struct{}, 1)
			timer   *time.Timer
		)
		signal := func() {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op&fsnotify.Create == fsnotify.Create {
					// new sub-directories are watched too; files make Add fail, which is fine
					_ = w.Add(e.Name)
				}
				f, ok := accepted(e.Name)
				if !ok || e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				mu.Lock()
				pending[e.Name] = f
				mu.Unlock()
				if cfg.Debounce > 0 {
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(cfg.Debounce, signal)
				} else {
					signal()
				}
			case <-ready:
				mu.Lock()
				batch := pending
				pending = map[string]InboxFile{}
				mu.Unlock()
				for _, f := range batch {
					if !emit(f) {
						return
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("ingest.watch.error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

// accepted skips hidden files, which covers in-flight ".name.part" uploads.
func accepted(path string) (InboxFile, bool) {
	if utils.IsHidden(path) {
		return InboxFile{}, false
	}
	mt := constants.MimeTypeFromExt(filepath.Ext(path))
	if mt == "" {
		return InboxFile{}, false
	}
	return InboxFile{Path: path, MimeType: mt}, true
}
