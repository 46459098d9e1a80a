// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/applyflow/pkg/persistence"
	"github.com/dukex/applyflow/pkg/persistence/file"
	"github.com/dukex/applyflow/pkg/persistence/memory"
	"github.com/dukex/applyflow/pkg/persistence/postgresql"
)

// NewPersistence selects the backend from the URL scheme. An empty URL or memory:// keeps
// everything in process; file://dir keeps a JSON snapshot in dir.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger.With("persistence", "postgresql"), databaseURL)
	case "file":
		return file.NewPersistence(databaseURL)
	case "memory":
		logger.WarnContext(ctx, "Using in-memory persistence; state is lost on exit")

		return memory.NewPersistence(), nil
	default:
		return nil, fmt.Errorf("unsupported database url %q", databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	if databaseURL == "" {
		return "memory"
	}

	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return ""
	}

	return provider
}
