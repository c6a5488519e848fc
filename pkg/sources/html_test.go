package sources

import (
	"context"
	"testing"
	"time"
)

const sampleListing = `<html><body>
<table class="torrents">
  <tr class="row">
    <td class="name"><a href="/view/1" title="Show &lt;b&gt;01&lt;/b&gt;">Show 01</a></td>
    <td><a class="dl" href="/download/1.torrent">dl</a></td>
    <td class="date" data-timestamp="1748858400">2025-06-02</td>
  </tr>
  <tr class="row">
    <td class="name"><a href="/view/2">Show 02</a></td>
    <td><a class="dl" href="magnet:?xt=urn:btih:FEED">magnet</a></td>
    <td class="date" data-timestamp="1748862000">2025-06-02</td>
  </tr>
  <tr class="row">
    <td class="name"><a href="/view/3">Undated</a></td>
    <td><a class="dl" href="/download/3.torrent">dl</a></td>
    <td class="date"></td>
  </tr>
</table>
</body></html>`

func listingDefinition() Definition {
	return Definition{
		ID:        "listing",
		SourceURL: "https://tracker.example/list?page=1",
		Config: map[string]any{
			ConfigItemSelectorKey: "tr.row",
			ConfigNameSelectorKey: "td.name a",
			ConfigLinkSelectorKey: "a.dl",
			ConfigTimeSelectorKey: "td.date",
			ConfigTimeAttrKey:     "data-timestamp",
			ConfigTimeLayoutKey:   TimeLayoutUnix,
		},
	}
}

func TestHTMLSourceFetchItems(t *testing.T) {
	src, err := NewHTMLSource(listingDefinition(), mockHTTPClient{t: t, body: sampleListing})
	if err != nil {
		t.Fatalf("NewHTMLSource returned error: %v", err)
	}
	items, err := src.FetchItems(context.Background())
	if err != nil {
		t.Fatalf("FetchItems returned error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(items), items)
	}
	if items[0].Name != "Show 01" {
		t.Errorf("unexpected name %q", items[0].Name)
	}
	if items[0].SourceReference != "https://tracker.example/download/1.torrent" {
		t.Errorf("expected resolved absolute link, got %q", items[0].SourceReference)
	}
	if !items[0].PublishedAt.Equal(time.Unix(1748858400, 0)) {
		t.Errorf("unexpected published time %v", items[0].PublishedAt)
	}
	if items[1].SourceReference != "magnet:?xt=urn:btih:FEED" {
		t.Errorf("magnet link should be kept verbatim, got %q", items[1].SourceReference)
	}
}

func TestHTMLSourceNameFromAttribute(t *testing.T) {
	def := listingDefinition()
	def.Config[ConfigNameAttrKey] = "title"
	src, err := NewHTMLSource(def, mockHTTPClient{t: t, body: sampleListing})
	if err != nil {
		t.Fatalf("NewHTMLSource returned error: %v", err)
	}
	items, err := src.FetchItems(context.Background())
	if err != nil {
		t.Fatalf("FetchItems returned error: %v", err)
	}
	// markup inside the attribute is stripped; the second row has no title attribute
	if len(items) != 1 || items[0].Name != "Show 01" {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestNewHTMLSourceRequiresSelectors(t *testing.T) {
	def := listingDefinition()
	delete(def.Config, ConfigItemSelectorKey)
	if _, err := NewHTMLSource(def, mockHTTPClient{t: t}); err == nil {
		t.Fatal("expected error without item selector")
	}
}

func TestParseTime(t *testing.T) {
	if _, ok := parseTime("", time.RFC3339); ok {
		t.Fatal("empty value must not parse")
	}
	if _, ok := parseTime("abc", TimeLayoutUnix); ok {
		t.Fatal("non-numeric unix value must not parse")
	}
	got, ok := parseTime("2025-06-02T10:00:00+02:00", time.RFC3339)
	if !ok || !got.Equal(time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected parse result %v %v", got, ok)
	}
}
