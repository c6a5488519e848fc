package resolver

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const testMagnet = "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567&dn=Show"

func newTestResolver(t *testing.T, mirrors ...string) *CacheResolver {
	t.Helper()
	r, err := NewCacheResolver(CacheOptions{
		Mirrors: mirrors,
		Timeout: 5 * time.Second,
		Clock:   func() time.Time { return time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewCacheResolver returned error: %v", err)
	}
	return r
}

func TestCacheResolverFallsBackToNextMirror(t *testing.T) {
	var badHits, goodHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/bad/", func(w http.ResponseWriter, r *http.Request) {
		badHits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/good/", func(w http.ResponseWriter, r *http.Request) {
		goodHits.Add(1)
		if !strings.HasSuffix(r.URL.Path, "/0123456789ABCDEF0123456789ABCDEF01234567.torrent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(sampleMetainfo))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := newTestResolver(t, srv.URL+"/bad/{HASH}.torrent", srv.URL+"/good/{HASH}.torrent")

	body, err := r.Resolve(context.Background(), testMagnet, time.Second)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if string(body) != sampleMetainfo {
		t.Fatalf("unexpected body %q", body)
	}

	// the healthy mirror is now preferred
	if _, err := r.Resolve(context.Background(), testMagnet, time.Second); err != nil {
		t.Fatalf("second Resolve returned error: %v", err)
	}
	if badHits.Load() != 1 || goodHits.Load() != 2 {
		t.Fatalf("unexpected hits bad=%d good=%d", badHits.Load(), goodHits.Load())
	}
}

func TestCacheResolverRejectsNonMetainfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>captcha</html>"))
	}))
	defer srv.Close()

	r := newTestResolver(t, srv.URL+"/{hash}")
	if _, err := r.Resolve(context.Background(), testMagnet, time.Second); err == nil {
		t.Fatal("expected error for non-metainfo body")
	}
}

func TestCacheResolverTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	r := newTestResolver(t, srv.URL+"/{HASH}")
	_, err := r.Resolve(context.Background(), testMagnet, 50*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestCacheResolverStateRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleMetainfo))
	}))
	defer srv.Close()

	mirrors := []string{srv.URL + "/a/{HASH}", srv.URL + "/b/{HASH}"}
	first := newTestResolver(t, mirrors...)
	if _, err := first.Resolve(context.Background(), testMagnet, time.Second); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	saved, err := first.SaveState()
	if err != nil {
		t.Fatalf("SaveState returned error: %v", err)
	}

	second := newTestResolver(t, mirrors...)
	if err := second.LoadState(saved); err != nil {
		t.Fatalf("LoadState returned error: %v", err)
	}
	again, err := second.SaveState()
	if err != nil {
		t.Fatalf("SaveState returned error: %v", err)
	}
	if !bytes.Equal(saved, again) {
		t.Fatalf("state changed across round trip:\n%s\n%s", saved, again)
	}
}

func TestCacheResolverLoadStateRejectsGarbage(t *testing.T) {
	r := newTestResolver(t, "https://cache.example/{HASH}")
	if err := r.LoadState([]byte("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
	if err := r.LoadState([]byte(`{"version":99}`)); err == nil {
		t.Fatal("expected version error")
	}
	if err := r.LoadState(nil); err != nil {
		t.Fatalf("empty state should be accepted, got %v", err)
	}
}

func TestCacheResolverWarmup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := newTestResolver(t, srv.URL+"/{HASH}", "http://127.0.0.1:1/{HASH}")
	if got := r.Warmup(context.Background(), time.Second); got != 1 {
		t.Fatalf("expected 1 reachable mirror, got %d", got)
	}
	ordered := r.orderedMirrors()
	if !strings.HasPrefix(ordered[0], srv.URL) {
		t.Fatalf("reachable mirror should be tried first, got %v", ordered)
	}
}

func TestCacheResolverShutdown(t *testing.T) {
	r := newTestResolver(t, "https://cache.example/{HASH}")
	if err := r.Shutdown(); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
	if err := r.Shutdown(); err != nil {
		t.Fatalf("second Shutdown returned error: %v", err)
	}
	if _, err := r.Resolve(context.Background(), testMagnet, time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestNewCacheResolverValidatesMirrors(t *testing.T) {
	if _, err := NewCacheResolver(CacheOptions{}); err == nil {
		t.Fatal("expected error without mirrors")
	}
	if _, err := NewCacheResolver(CacheOptions{Mirrors: []string{"https://cache.example/static"}}); err == nil {
		t.Fatal("expected error for mirror without placeholder")
	}
}
