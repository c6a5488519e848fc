package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/samvad-hq/samvad-feed-aggregator/internal/logger"
	"github.com/samvad-hq/samvad-feed-aggregator/internal/workpool"
	"github.com/samvad-hq/samvad-feed-aggregator/pkg/httpclient"
)

const (
	hashPlaceholder      = "{HASH}"
	hashPlaceholderLower = "{hash}"
	stateVersion         = 1
)

// MirrorHealth is the per-mirror record kept in the session state.
type MirrorHealth struct {
	Successes   int       `json:"successes"`
	Failures    int       `json:"failures"`
	LastSuccess time.Time `json:"last_success"`
	LastFailure time.Time `json:"last_failure"`
	Reachable   bool      `json:"reachable"`
}

func (h *MirrorHealth) score() int {
	s := h.Successes - h.Failures
	if h.Reachable {
		s++
	}
	return s
}

type sessionState struct {
	Version int                      `json:"version"`
	Mirrors map[string]*MirrorHealth `json:"mirrors"`
}

// CacheOptions configures a CacheResolver.
type CacheOptions struct {
	// Mirrors are URL templates containing {HASH} (upper-case) or {hash} (lower-case).
	Mirrors    []string
	Client     *resty.Client
	Timeout    time.Duration
	UserAgent  string
	MinHealthy int
	Logger     logger.Logger
	Clock      func() time.Time
}

// CacheResolver resolves magnets by asking public torrent caches for the
// metainfo of an info-hash. Mirrors that answered well before are tried first.
type CacheResolver struct {
	client     *resty.Client
	mirrors    []string
	minHealthy int
	log        logger.Logger
	now        func() time.Time

	mu     sync.Mutex
	health map[string]*MirrorHealth
	closed bool
}

// NewCacheResolver validates the mirror templates and builds a resolver.
func NewCacheResolver(opts CacheOptions) (*CacheResolver, error) {
	mirrors := make([]string, 0, len(opts.Mirrors))
	for _, m := range opts.Mirrors {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if !strings.Contains(m, hashPlaceholder) && !strings.Contains(m, hashPlaceholderLower) {
			return nil, fmt.Errorf("resolver mirror %q has no %s placeholder", m, hashPlaceholder)
		}
		mirrors = append(mirrors, m)
	}
	if len(mirrors) == 0 {
		return nil, errors.New("resolver requires at least one mirror")
	}

	client := opts.Client
	if client == nil {
		client = httpclient.NewRestyHTTPClient(httpclient.Options{
			Timeout:   opts.Timeout,
			UserAgent: opts.UserAgent,
		})
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	minHealthy := opts.MinHealthy
	if minHealthy <= 0 {
		minHealthy = 1
	}

	r := &CacheResolver{
		client:     client,
		mirrors:    mirrors,
		minHealthy: minHealthy,
		log:        logger.Ensure(opts.Logger),
		now:        now,
		health:     make(map[string]*MirrorHealth, len(mirrors)),
	}
	for _, m := range mirrors {
		r.health[m] = &MirrorHealth{}
	}
	return r, nil
}

// Resolve returns the bencoded metainfo for reference. It waits at most timeout
// (when positive) and returns ErrTimeout if the deadline passes first.
func (r *CacheResolver) Resolve(ctx context.Context, reference string, timeout time.Duration) ([]byte, error) {
	hash, err := InfoHash(reference)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var errs []error
	for _, mirror := range r.orderedMirrors() {
		body, err := r.tryMirror(ctx, mirror, hash)
		if err == nil {
			r.record(mirror, true)
			return body, nil
		}
		if ctx.Err() != nil {
			break
		}
		r.record(mirror, false)
		errs = append(errs, err)
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s", ErrTimeout, hash)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, fmt.Errorf("resolve %s: %w", hash, errors.Join(errs...))
}

func (r *CacheResolver) tryMirror(ctx context.Context, mirror, hash string) ([]byte, error) {
	target := strings.NewReplacer(
		hashPlaceholder, hash,
		hashPlaceholderLower, strings.ToLower(hash),
	).Replace(mirror)

	resp, err := r.client.R().SetContext(ctx).Get(target)
	if err != nil {
		return nil, fmt.Errorf("mirror %s: %w", target, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("mirror %s: status %d", target, resp.StatusCode())
	}
	body := resp.Body()
	if _, err := DecodeName(body); err != nil {
		return nil, fmt.Errorf("mirror %s: %w", target, err)
	}
	return body, nil
}

func (r *CacheResolver) orderedMirrors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.mirrors))
	copy(out, r.mirrors)
	sort.SliceStable(out, func(i, j int) bool {
		return r.healthOf(out[i]).score() > r.healthOf(out[j]).score()
	})
	return out
}

// healthOf must be called with mu held.
func (r *CacheResolver) healthOf(mirror string) *MirrorHealth {
	h, ok := r.health[mirror]
	if !ok {
		h = &MirrorHealth{}
		r.health[mirror] = h
	}
	return h
}

func (r *CacheResolver) record(mirror string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.healthOf(mirror)
	if ok {
		h.Successes++
		h.LastSuccess = r.now().UTC()
		h.Reachable = true
		return
	}
	h.Failures++
	h.LastFailure = r.now().UTC()
}

// Warmup checks which mirrors are reachable, waiting at most wait, and
// returns how many answered. Fewer than MinHealthy is logged.
func (r *CacheResolver) Warmup(ctx context.Context, wait time.Duration) int {
	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	results := workpool.Map(ctx, len(r.mirrors), r.mirrors, func(ctx context.Context, mirror string) (bool, error) {
		return r.ping(ctx, mirror), nil
	})

	reachable := 0
	r.mu.Lock()
	for i, res := range results {
		ok := res.Err == nil && res.Value
		r.healthOf(r.mirrors[i]).Reachable = ok
		if ok {
			reachable++
		}
	}
	r.mu.Unlock()

	if reachable < r.minHealthy {
		r.log.WarnObj("few resolver mirrors reachable, resolving might be slow", "warmup", map[string]int{
			"reachable": reachable,
			"wanted":    r.minHealthy,
			"mirrors":   len(r.mirrors),
		})
	} else {
		r.log.InfoObj("resolver warmup finished", "warmup", map[string]int{
			"reachable": reachable,
			"mirrors":   len(r.mirrors),
		})
	}
	return reachable
}

// ping reports whether the mirror host answers at all; any HTTP status counts.
func (r *CacheResolver) ping(ctx context.Context, mirror string) bool {
	u, err := url.Parse(strings.NewReplacer(hashPlaceholder, "", hashPlaceholderLower, "").Replace(mirror))
	if err != nil || u.Host == "" {
		return false
	}
	base := u.Scheme + "://" + u.Host + "/"
	_, err = r.client.R().SetContext(ctx).Head(base)
	return err == nil
}

// LoadState merges previously saved mirror health. An empty blob is a no-op.
func (r *CacheResolver) LoadState(blob []byte) error {
	if len(blob) == 0 {
		return nil
	}
	var st sessionState
	if err := json.Unmarshal(blob, &st); err != nil {
		return fmt.Errorf("decode resolver state: %w", err)
	}
	if st.Version != stateVersion {
		return fmt.Errorf("unsupported resolver state version %d", st.Version)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for mirror, h := range st.Mirrors {
		if h == nil {
			continue
		}
		copied := *h
		r.health[mirror] = &copied
	}
	return nil
}

// SaveState serializes mirror health. Output is deterministic for equal state.
func (r *CacheResolver) SaveState() ([]byte, error) {
	r.mu.Lock()
	st := sessionState{Version: stateVersion, Mirrors: make(map[string]*MirrorHealth, len(r.health))}
	for mirror, h := range r.health {
		copied := *h
		st.Mirrors[mirror] = &copied
	}
	r.mu.Unlock()

	blob, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode resolver state: %w", err)
	}
	return blob, nil
}

// Shutdown stops accepting new resolves and releases idle connections.
func (r *CacheResolver) Shutdown() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.client.GetClient().CloseIdleConnections()
	return nil
}
