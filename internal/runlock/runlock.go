package runlock

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"conveyor/internal/logging"
)

// ErrHeld reports that another process already owns the workspace lock.
var ErrHeld = errors.New("workspace is locked by another conveyor process")

// Lock guards a workspace so only one pipeline run mutates its checkpoint
// namespace and partial-result directories at a time.
type Lock struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger
}

// New builds a lock rooted at the workspace directory. The lock file lives
// inside the workspace so separate workspaces never contend.
func New(workspaceDir string, logger *slog.Logger) *Lock {
	path := filepath.Join(workspaceDir, "conveyor.lock")
	return &Lock{
		path:   path,
		lock:   flock.New(path),
		logger: logging.NewComponentLogger(logger, "runlock"),
	}
}

// Acquire takes the lock without blocking. It returns ErrHeld when another
// process owns it.
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire workspace lock: %w", err)
	}
	if !ok {
		return ErrHeld
	}
	l.logger.Debug("workspace lock acquired", logging.String("path", l.path))
	return nil
}

// Release drops the lock. Safe to call when the lock was never acquired.
func (l *Lock) Release() {
	if err := l.lock.Unlock(); err != nil {
		l.logger.Warn("failed to release workspace lock", logging.Error(err))
	}
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}
