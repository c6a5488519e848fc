// Package fetcher downloads artifacts that are published at plain HTTP(S) URLs.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/samvad-hq/samvad-feed-aggregator/pkg/httpclient"
)

const partSuffix = ".part"

// Fetcher downloads a URL to a destination path.
type Fetcher interface {
	Fetch(ctx context.Context, url, destination string) error
}

// TransferError reports a non-2xx response.
type TransferError struct {
	URL        string
	StatusCode int
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Options tunes the direct fetcher.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	// RPS limits request starts per second; zero means unlimited.
	RPS float64
	Fs  afero.Fs
}

// DirectFetcher downloads files over HTTP keeping cookies across redirects.
type DirectFetcher struct {
	client  *resty.Client
	limiter *rate.Limiter
	fs      afero.Fs
}

// New builds a DirectFetcher backed by a fresh resty client.
func New(opts Options) *DirectFetcher {
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = httpclient.DefaultUserAgent
	}
	return NewWithClient(httpclient.NewRestyHTTPClient(httpclient.Options{
		Timeout:   opts.Timeout,
		UserAgent: opts.UserAgent,
	}), opts)
}

// NewWithClient uses the given resty client; only opts.RPS and opts.Fs are read.
func NewWithClient(client *resty.Client, opts Options) *DirectFetcher {
	f := &DirectFetcher{client: client, fs: opts.Fs}
	if f.fs == nil {
		f.fs = afero.NewOsFs()
	}
	if opts.RPS > 0 {
		burst := int(opts.RPS)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return f
}

// Fetch downloads rawURL to destination. The body is streamed into
// destination+".part" and renamed on success, so a failed transfer never
// leaves a file under the final name.
func (f *DirectFetcher) Fetch(ctx context.Context, rawURL, destination string) error {
	if strings.TrimSpace(rawURL) == "" {
		return errors.New("fetch: empty url")
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("fetch %s: %w", rawURL, err)
		}
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if code := resp.StatusCode(); code < http.StatusOK || code >= http.StatusMultipleChoices {
		return &TransferError{URL: rawURL, StatusCode: code}
	}

	return f.write(body, destination)
}

func (f *DirectFetcher) write(body io.Reader, destination string) error {
	if err := f.fs.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	part := destination + partSuffix
	out, err := f.fs.Create(part)
	if err != nil {
		return fmt.Errorf("create %s: %w", part, err)
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		_ = f.fs.Remove(part)
		return fmt.Errorf("write %s: %w", part, err)
	}
	if err := out.Close(); err != nil {
		_ = f.fs.Remove(part)
		return fmt.Errorf("close %s: %w", part, err)
	}
	if err := f.fs.Rename(part, destination); err != nil {
		_ = f.fs.Remove(part)
		return fmt.Errorf("rename %s: %w", part, err)
	}
	return nil
}
