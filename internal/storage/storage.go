package storage

import (
	"fmt"
	"strings"
	"time"
)

// Package storage provides persistence for the scheduler watermark.

// Store persists the last successfully checked instant across restarts.
type Store interface {
	Close() error
	// Watermark returns the stored watermark; ok is false when none was saved yet.
	Watermark() (t time.Time, ok bool, err error)
	SetWatermark(t time.Time) error
}

// NewStore creates the configured storage backend.
func NewStore(typ, path string) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

type noopStore struct{}

func (noopStore) Close() error                        { return nil }
func (noopStore) Watermark() (time.Time, bool, error) { return time.Time{}, false, nil }
func (noopStore) SetWatermark(time.Time) error        { return nil }
