package clients

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dukex/applyflow/pkg/timers/handlers"
)

var _ handlers.DocumentStorage = (*LocalStorage)(nil)

// LocalStorage keeps documents under a root directory, addressed by storage key.
type LocalStorage struct {
	root string
}

func NewLocalStorage(root string) *LocalStorage {
	return &LocalStorage{root: root}
}

// Path resolves a storage key inside the root. Keys cannot escape the root.
func (s *LocalStorage) Path(storageKey string) string {
	return filepath.Join(s.root, filepath.Clean(string(filepath.Separator)+storageKey))
}

// Delete removes a stored file. A missing file is not an error.
func (s *LocalStorage) Delete(_ context.Context, storageKey string) error {
	if storageKey == "" {
		return errors.New("empty storage key")
	}

	err := os.Remove(s.Path(storageKey))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", storageKey, err)
	}

	return nil
}
