package sources

import (
	"context"
	"fmt"

	"github.com/samvad-hq/samvad-feed-aggregator/internal/domain"
	"github.com/samvad-hq/samvad-feed-aggregator/pkg/httpclient"
)

// Source reports the items a single feed currently publishes.
// Concrete implementations live in type-specific files (e.g., rss.go).
type Source interface {
	ID() string
	FetchItems(ctx context.Context) ([]domain.Item, error)
}

// Builder creates a Source from a definition entry.
type Builder func(def Definition, client HTTPClient) (Source, error)

// HTTPClient aliases the shared httpclient.Client interface for clarity within sources.
type HTTPClient = httpclient.Client

// SourceError marks a feed that could not be read or parsed.
type SourceError struct {
	SourceID string
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.SourceID, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }
