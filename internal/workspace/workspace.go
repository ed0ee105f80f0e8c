// Package workspace provides per-request scratch directories.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	cropsDir     = "crops"
	snapshotsDir = "snapshots"
)

// Workspace is a uniquely named directory owned by one request. Callers must
// defer Remove right after New returns.
type Workspace struct {
	ID   string
	root string
}

func New(baseDir string) (*Workspace, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace base dir: %w", err)
	}

	id := uuid.NewString()
	root, err := os.MkdirTemp(baseDir, "req-"+id+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	ws := &Workspace{ID: id, root: root}
	for _, dir := range []string{cropsDir, snapshotsDir} {
		if err := os.Mkdir(filepath.Join(root, dir), 0o755); err != nil {
			_ = os.RemoveAll(root)
			return nil, fmt.Errorf("failed to create workspace %s dir: %w", dir, err)
		}
	}
	return ws, nil
}

func (w *Workspace) Root() string { return w.root }

func (w *Workspace) CropsDir() string { return filepath.Join(w.root, cropsDir) }

func (w *Workspace) SnapshotsDir() string { return filepath.Join(w.root, snapshotsDir) }

// File returns a path for a loose file at the workspace root.
func (w *Workspace) File(name string) string {
	return filepath.Join(w.root, filepath.Base(name))
}

// Remove deletes the workspace and everything in it. Safe to call twice.
func (w *Workspace) Remove() error {
	if w == nil || w.root == "" {
		return nil
	}
	return os.RemoveAll(w.root)
}
