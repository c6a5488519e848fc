// Package dedup decides which discovered items are new work.
package dedup

import (
	"time"

	"github.com/samvad-hq/samvad-feed-aggregator/internal/domain"
)

// Snapshot is a read-only set of file names already present in the output directory.
type Snapshot struct {
	names map[string]struct{}
}

// NewSnapshot builds a snapshot from the given file names.
func NewSnapshot(names ...string) Snapshot {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return Snapshot{names: set}
}

// Has reports whether name is present.
func (s Snapshot) Has(name string) bool {
	_, ok := s.names[name]
	return ok
}

// Len returns the number of file names.
func (s Snapshot) Len() int { return len(s.names) }

// ShouldProcess is true iff the item was published after the watermark and its
// artifact is not already materialized.
func ShouldProcess(item domain.Item, watermark time.Time, existing Snapshot) bool {
	return item.PublishedAt.After(watermark) && !existing.Has(item.FileName())
}

// Filter keeps the items ShouldProcess accepts. When several items map to the
// same file name only the first is kept, so one artifact is never written twice
// in the same cycle.
func Filter(items []domain.Item, watermark time.Time, existing Snapshot) []domain.Item {
	out := make([]domain.Item, 0, len(items))
	claimed := make(map[string]struct{}, len(items))
	for _, item := range items {
		if !ShouldProcess(item, watermark, existing) {
			continue
		}
		name := item.FileName()
		if _, dup := claimed[name]; dup {
			continue
		}
		claimed[name] = struct{}{}
		out = append(out, item)
	}
	return out
}
