// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/persistence/memory"
	"github.com/dukex/journey/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"postgres", "postgresql", "memory"}

// Store is a persistence backend that also resolves segment membership.
type Store interface {
	persistence.Persistence
	SegmentMembers(ctx context.Context, organizationID, segmentID string) ([]string, error)
}

// NewPersistence opens the backend named by the URL scheme of databaseURL.
// "memory://" keeps everything in process.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (Store, error) {
	provider, err := parsePersistenceProvider(databaseURL)
	if err != nil {
		return nil, err
	}

	switch provider {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return store, nil
	default:
		logger.WarnContext(ctx, "Using in-memory persistence, state is lost on restart")

		return memory.NewPersistence(), nil
	}
}

func parsePersistenceProvider(databaseURL string) (string, error) {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "", fmt.Errorf("invalid database url %q: missing scheme", databaseURL)
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider, nil
		}
	}

	return "", fmt.Errorf("unsupported persistence provider %q", provider)
}
