package domain

// Domain contains core models shared by sources, the scheduler and dispatch.

import (
	"strings"
	"time"
)

// ArtifactExtension is appended to every sanitized item name.
const ArtifactExtension = ".torrent"

// Kind selects the fetch strategy for an item.
type Kind int

const (
	// KindDirect items are downloaded from an HTTP(S) URL.
	KindDirect Kind = iota
	// KindResolvable items carry a magnet reference resolved through the peer network.
	KindResolvable
)

func (k Kind) String() string {
	switch k {
	case KindResolvable:
		return "resolvable"
	default:
		return "direct"
	}
}

// Item is one discoverable unit of work reported by a source.
type Item struct {
	Name            string    `json:"name"`
	SourceReference string    `json:"source_reference"`
	PublishedAt     time.Time `json:"published_at"`
	SourceID        string    `json:"source_id,omitempty"`
}

// Kind reports Resolvable for magnet references, Direct for everything else.
func (i Item) Kind() Kind {
	if hasPrefixFold(strings.TrimSpace(i.SourceReference), "magnet") {
		return KindResolvable
	}
	return KindDirect
}

// FileName is the artifact file name derived from the item name.
func (i Item) FileName() string {
	return SanitizeName(i.Name) + ArtifactExtension
}

// SanitizeName replaces path separators so the result is always a single path
// element. Names that would still point at the directory itself or its parent
// are prefixed with an underscore. SanitizeName is idempotent.
func SanitizeName(name string) string {
	name = strings.NewReplacer("/", "-", `\`, "-").Replace(name)
	if len(name) <= 2 && strings.Trim(name, ".") == "" {
		return "_" + name
	}
	return name
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
