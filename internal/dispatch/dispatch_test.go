package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/samvad-hq/samvad-feed-aggregator/internal/domain"
)

type fakeResolver struct {
	data []byte
	err  error

	mu      sync.Mutex
	refs    []string
	timeout time.Duration
}

func (f *fakeResolver) Resolve(_ context.Context, ref string, timeout time.Duration) ([]byte, error) {
	f.mu.Lock()
	f.refs = append(f.refs, ref)
	f.timeout = timeout
	f.mu.Unlock()
	return f.data, f.err
}

type fakeFetcher struct {
	fs   afero.Fs
	body string
	err  error

	mu    sync.Mutex
	calls map[string]string
}

func (f *fakeFetcher) Fetch(_ context.Context, url, dest string) error {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]string{}
	}
	f.calls[url] = dest
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	return afero.WriteFile(f.fs, dest, []byte(f.body), 0o644)
}

func decodeOK(data []byte) (string, error) { return "decoded", nil }

func newRouter(t *testing.T, res *fakeResolver, fet *fakeFetcher, fsys afero.Fs) *Router {
	t.Helper()
	r, err := NewRouter(Options{
		OutputDir:      "out",
		ResolveTimeout: 3 * time.Second,
		Resolver:       res,
		Fetcher:        fet,
		DecodeName:     decodeOK,
		Fs:             fsys,
	})
	if err != nil {
		t.Fatalf("NewRouter returned error: %v", err)
	}
	return r
}

func TestDispatchResolvableWritesArtifact(t *testing.T) {
	fsys := afero.NewMemMapFs()
	res := &fakeResolver{data: []byte("metainfo")}
	fet := &fakeFetcher{fs: fsys}
	r := newRouter(t, res, fet, fsys)

	item := domain.Item{Name: "A/B", SourceReference: "magnet:?xt=urn:btih:abc"}
	out := r.Dispatch(context.Background(), item)
	if !out.OK() {
		t.Fatalf("unexpected error %v", out.Err)
	}
	if out.Kind != domain.KindResolvable {
		t.Fatalf("unexpected kind %v", out.Kind)
	}
	want := filepath.Join("out", "A-B.torrent")
	if out.Path != want {
		t.Fatalf("unexpected path %q", out.Path)
	}
	got, err := afero.ReadFile(fsys, want)
	if err != nil || string(got) != "metainfo" {
		t.Fatalf("artifact not written: %q %v", got, err)
	}
	if res.timeout != 3*time.Second {
		t.Fatalf("resolver called with timeout %v", res.timeout)
	}
	if len(fet.calls) != 0 {
		t.Fatal("fetcher must not be used for magnet items")
	}
}

func TestDispatchDirectUsesFetcher(t *testing.T) {
	fsys := afero.NewMemMapFs()
	res := &fakeResolver{}
	fet := &fakeFetcher{fs: fsys, body: "direct"}
	r := newRouter(t, res, fet, fsys)

	item := domain.Item{Name: "B", SourceReference: "https://x.example/b.torrent"}
	out := r.Dispatch(context.Background(), item)
	if !out.OK() {
		t.Fatalf("unexpected error %v", out.Err)
	}
	if fet.calls["https://x.example/b.torrent"] != filepath.Join("out", "B.torrent") {
		t.Fatalf("unexpected fetch calls %v", fet.calls)
	}
	if len(res.refs) != 0 {
		t.Fatal("resolver must not be used for direct items")
	}
}

func TestDispatchWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	fsys := afero.NewMemMapFs()
	r := newRouter(t, &fakeResolver{err: boom}, &fakeFetcher{fs: fsys, err: boom}, fsys)

	for _, item := range []domain.Item{
		{Name: "m", SourceReference: "magnet:?xt=urn:btih:abc"},
		{Name: "d", SourceReference: "https://x.example/d"},
	} {
		out := r.Dispatch(context.Background(), item)
		var de *DispatchError
		if !errors.As(out.Err, &de) {
			t.Fatalf("expected DispatchError, got %v", out.Err)
		}
		if de.Item.Name != item.Name || !errors.Is(out.Err, boom) {
			t.Fatalf("unexpected error %v", out.Err)
		}
		if ok, _ := afero.Exists(fsys, out.Path); ok {
			t.Fatalf("no artifact expected for failed item %q", item.Name)
		}
	}
}

func TestDispatchRejectsInvalidMetainfo(t *testing.T) {
	fsys := afero.NewMemMapFs()
	r, err := NewRouter(Options{
		OutputDir:  "out",
		Resolver:   &fakeResolver{data: []byte("junk")},
		Fetcher:    &fakeFetcher{fs: fsys},
		DecodeName: func([]byte) (string, error) { return "", errors.New("not bencode") },
		Fs:         fsys,
	})
	if err != nil {
		t.Fatalf("NewRouter returned error: %v", err)
	}
	out := r.Dispatch(context.Background(), domain.Item{Name: "m", SourceReference: "magnet:?x"})
	if out.OK() {
		t.Fatal("expected invalid metainfo error")
	}
	if ok, _ := afero.Exists(fsys, out.Path); ok {
		t.Fatal("invalid metainfo must not be written")
	}
}

func TestNewRouterValidates(t *testing.T) {
	if _, err := NewRouter(Options{Resolver: &fakeResolver{}, Fetcher: &fakeFetcher{}}); err == nil {
		t.Fatal("expected error for empty output dir")
	}
	if _, err := NewRouter(Options{OutputDir: "out", Fetcher: &fakeFetcher{}}); err == nil {
		t.Fatal("expected error for nil resolver")
	}
	if _, err := NewRouter(Options{OutputDir: "out", Resolver: &fakeResolver{}}); err == nil {
		t.Fatal("expected error for nil fetcher")
	}
}
