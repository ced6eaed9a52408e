// Package tempfiles hands out per-job scratch paths under one shared working
// directory and removes them when the job is done.
package tempfiles

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

var reUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Manager owns the working directory. It is safe for concurrent use by many jobs.
type Manager struct {
	root   string
	logger *slog.Logger

	mu       sync.Mutex
	prepared bool
}

func NewManager(root string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if root == "" {
		root = filepath.Join(os.TempDir(), "notice-ingest")
	}
	return &Manager{root: root, logger: logger}
}

func (m *Manager) Root() string { return m.root }

// ensureRoot creates the working directory on first use. A failed attempt is retried next time.
func (m *Manager) ensureRoot() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prepared {
		return nil
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return fmt.Errorf("create work dir %q: %w", m.root, err)
	}
	m.prepared = true
	m.logger.Debug("tempfiles.root.ready", "root", m.root)
	return nil
}

// Scope starts a new set of handles for one job. Every path acquired from the
// scope carries the job prefix, so concurrent jobs never share a file name.
func (m *Manager) Scope(jobID string) *Scope {
	id := reUnsafe.ReplaceAllString(jobID, "_")
	if id == "" {
		id = "job"
	}
	return &Scope{
		m:      m,
		jobID:  jobID,
		prefix: id + "-" + strconv.FormatInt(time.Now().UnixNano(), 36),
	}
}

// Scope tracks every path issued for one job.
type Scope struct {
	m      *Manager
	jobID  string
	prefix string

	mu    sync.Mutex
	paths []string
}

// Acquire returns a fresh, non-existent path inside the working directory.
// The file itself is not created.
func (s *Scope) Acquire(prefix, ext string) (string, error) {
	if err := s.m.ensureRoot(); err != nil {
		return "", err
	}
	if ext != "" && ext[0] != '.' {
		ext = "." + ext
	}
	name := fmt.Sprintf("%s_%s_%d-%s%s",
		reUnsafe.ReplaceAllString(prefix, "_"),
		s.prefix,
		time.Now().UnixMilli(),
		uuid.NewString()[:8],
		ext,
	)
	path := filepath.Join(s.m.root, name)

	s.mu.Lock()
	s.paths = append(s.paths, path)
	s.mu.Unlock()
	return path, nil
}

// Paths returns a snapshot of the handles issued so far.
func (s *Scope) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// ReleaseAll deletes every handle issued within the scope. Individual failures
// are logged and never returned. Handles that were never written are skipped.
func (s *Scope) ReleaseAll() {
	s.mu.Lock()
	paths := s.paths
	s.paths = nil
	s.mu.Unlock()

	removed := 0
	for _, p := range paths {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
		default:
			s.m.logger.Warn("tempfiles.release.failed", "job_id", s.jobID, "path", p, "error", err)
		}
	}
	s.m.logger.Debug("tempfiles.release.ok", "job_id", s.jobID, "handles", len(paths), "removed", removed)
}
