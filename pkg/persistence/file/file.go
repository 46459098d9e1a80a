// Package file provides file-based persistence for single-process development: the
// in-memory store, written to one JSON snapshot after every committed write.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/applyflow/pkg/persistence"
	"github.com/dukex/applyflow/pkg/persistence/memory"
)

const snapshotFile = "applyflow.json"

var _ persistence.Persistence = (*Persistence)(nil)

// Persistence implements persistence.Persistence on top of a snapshot file.
type Persistence struct {
	*memory.Persistence

	root string
}

// NewPersistence opens or creates the store under root. root may carry a file:// prefix.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	err := os.MkdirAll(cleanRoot, 0o750)
	if err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", cleanRoot, err)
	}

	fp := &Persistence{root: cleanRoot}

	snapshot, err := fp.load()
	if err != nil {
		return nil, err
	}

	fp.Persistence = memory.Restore(snapshot, fp.write)

	return fp, nil
}

// Path is the snapshot location.
func (fp *Persistence) Path() string {
	return filepath.Join(fp.root, snapshotFile)
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) load() (*memory.Snapshot, error) {
	data, err := os.ReadFile(fp.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snapshot memory.Snapshot

	err = json.Unmarshal(data, &snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", fp.Path(), err)
	}

	return &snapshot, nil
}

// write replaces the snapshot through a rename so readers never see a partial file.
func (fp *Persistence) write(snapshot *memory.Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(fp.root, snapshotFile+".*")
	if err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	err = os.Rename(tmp.Name(), fp.Path())
	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	return nil
}
