package sources

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/samvad-hq/samvad-feed-aggregator/pkg/httpclient"
)

var titleStripper = bluemonday.StrictPolicy()

// cleanTitle strips markup and entities and collapses whitespace.
func cleanTitle(s string) string {
	s = titleStripper.Sanitize(s)
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

func fetchBody(ctx context.Context, client httpclient.Client, rawURL, sourceID string, headers map[string]string) ([]byte, error) {
	resp, err := client.Get(ctx, rawURL, headers)
	if err != nil {
		return nil, fmt.Errorf("fetch %s feed: %w", sourceID, err)
	}

	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%s feed returned status %d body: %s", sourceID, resp.StatusCode(), responseSnippet(body))
	}
	return body, nil
}

// resolveURL makes ref absolute relative to base; empty refs stay empty.
func resolveURL(ref, base string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if r.IsAbs() {
		return r.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// linkRewriter turns a feed link into the reference that should be fetched.
// The template may use regexp group references ($1, ${name}) and the
// placeholders {link} and {unix} (publication time in Unix seconds).
type linkRewriter struct {
	re   *regexp.Regexp
	tmpl string
}

func newLinkRewriter(def Definition) (linkRewriter, error) {
	if def.LinkPattern == "" {
		return linkRewriter{}, nil
	}
	re, err := regexp.Compile(def.LinkPattern)
	if err != nil {
		return linkRewriter{}, fmt.Errorf("compile link_pattern for %s: %w", def.ID, err)
	}
	return linkRewriter{re: re, tmpl: def.LinkTemplate}, nil
}

func (lr linkRewriter) apply(link string, published time.Time) string {
	if lr.re == nil {
		return link
	}
	match := lr.re.FindStringSubmatchIndex(link)
	if match == nil {
		return link
	}
	out := string(lr.re.ExpandString(nil, lr.tmpl, link, match))
	return strings.NewReplacer(
		"{link}", link,
		"{unix}", strconv.FormatInt(published.Unix(), 10),
	).Replace(out)
}

// magnetFromInfoHash builds a magnet reference for feeds that expose the info-hash.
func magnetFromInfoHash(hash, name string) string {
	q := url.Values{}
	q.Set("dn", name)
	return "magnet:?xt=urn:btih:" + strings.TrimSpace(hash) + "&" + q.Encode()
}
