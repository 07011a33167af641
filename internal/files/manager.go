// Package files owns the lifecycle of stored upload files. Records hold
// references of the form "/uploads/<name>"; the manager is the only code
// that touches the backing directory.
package files

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RefPrefix is the public path prefix baked into stored file references.
const RefPrefix = "/uploads/"

const sweepConcurrency = 4

// DeleteResult classifies the outcome of releasing a file reference.
type DeleteResult int

const (
	// Deleted means the backing file existed and was removed.
	Deleted DeleteResult = iota
	// AlreadyAbsent means there was nothing to remove. Callers treat this
	// as success; the goal state is reached either way.
	AlreadyAbsent
	// Failed means the file may still exist. Failures are logged and left
	// for the orphan sweep rather than failing the record operation.
	Failed
)

func (r DeleteResult) String() string {
	switch r {
	case Deleted:
		return "deleted"
	case AlreadyAbsent:
		return "already_absent"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Manager stores uploaded files under a single flat directory and hands out
// opaque references to them.
type Manager struct {
	dir    string
	logger *slog.Logger
}

func NewManager(dir string, logger *slog.Logger) (*Manager, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &Manager{dir: dir, logger: logger}, nil
}

// Dir returns the backing directory, for serving files over HTTP.
func (m *Manager) Dir() string {
	return m.dir
}

// Adopt copies the payload into the managed directory under a generated
// name and returns the reference to store on the record. The file is
// written to a temp name first and renamed into place so a failed copy
// never leaves a partial file under its final name.
func (m *Manager) Adopt(payload io.Reader, originalName string) (string, error) {
	name := uuid.NewString() + sanitizeExt(originalName)
	tmp, err := os.CreateTemp(m.dir, "incoming-*")
	if err != nil {
		return "", fmt.Errorf("create temp upload: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(m.dir, name)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("store upload: %w", err)
	}
	return RefPrefix + name, nil
}

// Release removes the file behind a reference. A missing file is not an
// error; a failed removal is logged and reported as Failed so the caller
// can proceed, leaving the file for the orphan sweep.
func (m *Manager) Release(ref string) DeleteResult {
	path, ok := m.resolve(ref)
	if !ok {
		return AlreadyAbsent
	}
	err := os.Remove(path)
	switch {
	case err == nil:
		return Deleted
	case os.IsNotExist(err):
		return AlreadyAbsent
	default:
		m.logger.Warn("failed to remove upload file", "ref", ref, "error", err)
		return Failed
	}
}

// Open returns a handle on the file behind a reference.
func (m *Manager) Open(ref string) (*os.File, error) {
	path, ok := m.resolve(ref)
	if !ok {
		return nil, os.ErrNotExist
	}
	return os.Open(path)
}

// Sweep removes files in the managed directory that no record references
// and that are older than minAge. The age floor keeps the sweep from racing
// an adoption whose record has not been persisted yet. It returns the
// number of files removed.
func (m *Manager) Sweep(ctx context.Context, referenced map[string]struct{}, minAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, fmt.Errorf("read upload directory: %w", err)
	}
	cutoff := time.Now().Add(-minAge)

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(sweepConcurrency)
	removed := make(chan string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if _, ok := referenced[RefPrefix+name]; ok {
			continue
		}
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			info, err := os.Stat(filepath.Join(m.dir, name))
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if info.ModTime().After(cutoff) {
				return nil
			}
			if err := os.Remove(filepath.Join(m.dir, name)); err != nil && !os.IsNotExist(err) {
				m.logger.Warn("failed to sweep orphan file", "name", name, "error", err)
				return nil
			}
			removed <- name
			return nil
		})
	}
	err = group.Wait()
	close(removed)
	count := len(removed)
	if count > 0 {
		m.logger.Info("swept orphan upload files", "count", count)
	}
	return count, err
}

// resolve maps a reference back to a path inside the managed directory. It
// rejects references that do not carry the expected prefix or that try to
// escape the directory.
func (m *Manager) resolve(ref string) (string, bool) {
	if !strings.HasPrefix(ref, RefPrefix) {
		return "", false
	}
	name := strings.TrimPrefix(ref, RefPrefix)
	if name == "" || name != filepath.Base(name) {
		return "", false
	}
	return filepath.Join(m.dir, name), true
}

func sanitizeExt(originalName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	if len(ext) > 12 || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}
