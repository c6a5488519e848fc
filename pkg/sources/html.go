package sources

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/samvad-hq/samvad-feed-aggregator/internal/domain"
)

// Config keys understood by html sources.
const (
	ConfigItemSelectorKey = "item_selector"
	ConfigNameSelectorKey = "name_selector"
	ConfigNameAttrKey     = "name_attr"
	ConfigLinkSelectorKey = "link_selector"
	ConfigLinkAttrKey     = "link_attr"
	ConfigTimeSelectorKey = "time_selector"
	ConfigTimeAttrKey     = "time_attr"
	ConfigTimeLayoutKey   = "time_layout"

	// TimeLayoutUnix interprets the time value as Unix seconds.
	TimeLayoutUnix = "unix"
)

// htmlSource scrapes listing pages with CSS selectors.
type htmlSource struct {
	def     Definition
	client  HTTPClient
	rewrite linkRewriter

	itemSel, nameSel, nameAttr string
	linkSel, linkAttr          string
	timeSel, timeAttr, layout  string
}

// NewHTMLSource builds a Source for an html typed definition.
func NewHTMLSource(def Definition, client HTTPClient) (Source, error) {
	if client == nil {
		client = DefaultHTTPClient()
	}
	if strings.TrimSpace(def.SourceURL) == "" {
		return nil, fmt.Errorf("source %q source_url is empty", def.ID)
	}
	s := &htmlSource{
		def:      def,
		client:   client,
		itemSel:  ConfigString(def, ConfigItemSelectorKey, ""),
		nameSel:  ConfigString(def, ConfigNameSelectorKey, ""),
		nameAttr: ConfigString(def, ConfigNameAttrKey, ""),
		linkSel:  ConfigString(def, ConfigLinkSelectorKey, "a"),
		linkAttr: ConfigString(def, ConfigLinkAttrKey, "href"),
		timeSel:  ConfigString(def, ConfigTimeSelectorKey, ""),
		timeAttr: ConfigString(def, ConfigTimeAttrKey, ""),
		layout:   ConfigString(def, ConfigTimeLayoutKey, time.RFC3339),
	}
	if s.itemSel == "" {
		return nil, fmt.Errorf("source %q requires config.%s", def.ID, ConfigItemSelectorKey)
	}
	if s.timeSel == "" {
		return nil, fmt.Errorf("source %q requires config.%s", def.ID, ConfigTimeSelectorKey)
	}
	rw, err := newLinkRewriter(def)
	if err != nil {
		return nil, err
	}
	s.rewrite = rw
	if s.def.MaxItems <= 0 {
		s.def.MaxItems = defaultMaxItems
	}
	return s, nil
}

func (s *htmlSource) ID() string {
	return s.def.ID
}

func (s *htmlSource) FetchItems(ctx context.Context) ([]domain.Item, error) {
	raw, err := fetchBody(ctx, s.client, s.def.SourceURL, s.def.ID, Headers(s.def))
	if err != nil {
		return nil, &SourceError{SourceID: s.def.ID, Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &SourceError{SourceID: s.def.ID, Err: fmt.Errorf("parse html: %w", err)}
	}

	var items []domain.Item
	doc.Find(s.itemSel).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if item, ok := s.extract(sel); ok {
			items = append(items, item)
		}
		return len(items) < s.def.MaxItems
	})
	return items, nil
}

func (s *htmlSource) extract(sel *goquery.Selection) (domain.Item, bool) {
	nameNode := sel
	if s.nameSel != "" {
		nameNode = sel.Find(s.nameSel).First()
	}
	var name string
	if s.nameAttr != "" {
		name, _ = nameNode.Attr(s.nameAttr)
	} else {
		name = nameNode.Text()
	}
	name = cleanTitle(name)
	if name == "" {
		return domain.Item{}, false
	}

	published, ok := s.extractTime(sel)
	if !ok {
		return domain.Item{}, false
	}

	link, _ := sel.Find(s.linkSel).First().Attr(s.linkAttr)
	link = resolveURL(link, s.def.SourceURL)
	link = s.rewrite.apply(link, published)
	if link == "" {
		return domain.Item{}, false
	}

	return domain.Item{
		Name:            name,
		SourceReference: link,
		PublishedAt:     published,
		SourceID:        s.def.ID,
	}, true
}

func (s *htmlSource) extractTime(sel *goquery.Selection) (time.Time, bool) {
	node := sel.Find(s.timeSel).First()
	var raw string
	if s.timeAttr != "" {
		raw, _ = node.Attr(s.timeAttr)
	} else {
		raw = node.Text()
	}
	return parseTime(strings.TrimSpace(raw), s.layout)
}

func parseTime(raw, layout string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	if layout == TimeLayoutUnix {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(secs, 0).UTC(), true
	}
	t, err := time.Parse(layout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
