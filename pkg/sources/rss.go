package sources

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/samvad-hq/samvad-feed-aggregator/internal/domain"
)

// ConfigMagnetFromInfoHashKey makes RSS sources prefer a magnet built from the
// item's <*:infoHash> extension element over its link.
const ConfigMagnetFromInfoHashKey = "magnet_from_infohash"

// rssSource reads RSS, Atom and JSON feeds.
type rssSource struct {
	def     Definition
	client  HTTPClient
	rewrite linkRewriter
}

// NewRSSSource builds a Source for an rss typed definition.
func NewRSSSource(def Definition, client HTTPClient) (Source, error) {
	if client == nil {
		client = DefaultHTTPClient()
	}
	if strings.TrimSpace(def.SourceURL) == "" {
		return nil, fmt.Errorf("source %q source_url is empty", def.ID)
	}
	rw, err := newLinkRewriter(def)
	if err != nil {
		return nil, err
	}
	if def.MaxItems <= 0 {
		def.MaxItems = defaultMaxItems
	}
	return &rssSource{def: def, client: client, rewrite: rw}, nil
}

func (s *rssSource) ID() string {
	return s.def.ID
}

func (s *rssSource) FetchItems(ctx context.Context) ([]domain.Item, error) {
	raw, err := fetchBody(ctx, s.client, s.def.SourceURL, s.def.ID, Headers(s.def))
	if err != nil {
		return nil, &SourceError{SourceID: s.def.ID, Err: err}
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, &SourceError{SourceID: s.def.ID, Err: fmt.Errorf("parse feed: %w", err)}
	}

	preferHash := strings.EqualFold(ConfigString(s.def, ConfigMagnetFromInfoHashKey, ""), "true")

	items := make([]domain.Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if len(items) >= s.def.MaxItems {
			break
		}
		item, ok := s.convert(entry, preferHash)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *rssSource) convert(entry *gofeed.Item, preferHash bool) (domain.Item, bool) {
	if entry == nil {
		return domain.Item{}, false
	}

	name := cleanTitle(entry.Title)
	if name == "" {
		return domain.Item{}, false
	}

	published, ok := entryTime(entry)
	if !ok {
		return domain.Item{}, false
	}

	ref := ""
	if preferHash {
		if hash := infoHashExtension(entry); hash != "" {
			ref = magnetFromInfoHash(hash, name)
		}
	}
	if ref == "" {
		ref = strings.TrimSpace(entry.Link)
		if ref == "" && len(entry.Enclosures) > 0 && entry.Enclosures[0] != nil {
			ref = strings.TrimSpace(entry.Enclosures[0].URL)
		}
		ref = s.rewrite.apply(ref, published)
	}
	if ref == "" {
		return domain.Item{}, false
	}

	return domain.Item{
		Name:            name,
		SourceReference: ref,
		PublishedAt:     published,
		SourceID:        s.def.ID,
	}, true
}

func entryTime(entry *gofeed.Item) (time.Time, bool) {
	if entry.PublishedParsed != nil {
		return entry.PublishedParsed.UTC(), true
	}
	if entry.UpdatedParsed != nil {
		return entry.UpdatedParsed.UTC(), true
	}
	return time.Time{}, false
}

func infoHashExtension(entry *gofeed.Item) string {
	for _, ns := range entry.Extensions {
		for name, values := range ns {
			if !strings.EqualFold(name, "infoHash") {
				continue
			}
			for _, v := range values {
				if hash := strings.TrimSpace(v.Value); hash != "" {
					return hash
				}
			}
		}
	}
	return ""
}
