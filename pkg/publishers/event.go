package publishers

import (
	"time"

	"github.com/google/uuid"

	"github.com/samvad-hq/samvad-feed-aggregator/internal/domain"
)

// Event announces an artifact that was written to the output directory.
type Event struct {
	ID        string      `json:"id"`
	CycleID   string      `json:"cycle_id"`
	SourceID  string      `json:"source_id"`
	Kind      string      `json:"kind"`
	Item      domain.Item `json:"item"`
	Path      string      `json:"path"`
	FetchedAt time.Time   `json:"fetched_at"`
}

// NewEvent constructs an Event for an item materialized at path during a cycle.
func NewEvent(cycleID string, item domain.Item, path string) Event {
	return Event{
		ID:        uuid.NewString(),
		CycleID:   cycleID,
		SourceID:  item.SourceID,
		Kind:      item.Kind().String(),
		Item:      item,
		Path:      path,
		FetchedAt: time.Now().UTC(),
	}
}
