// Package dispatch routes a new item to the fetch strategy matching its kind
// and materializes the artifact in the output directory.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/samvad-hq/samvad-feed-aggregator/internal/domain"
	"github.com/samvad-hq/samvad-feed-aggregator/internal/logger"
)

// Resolver is the part of resolver.Resolver used for dispatch.
type Resolver interface {
	Resolve(ctx context.Context, reference string, timeout time.Duration) ([]byte, error)
}

// Fetcher downloads a URL to a destination path.
type Fetcher interface {
	Fetch(ctx context.Context, url, destination string) error
}

// NameDecoder validates resolved metainfo and returns its embedded name.
type NameDecoder func(data []byte) (string, error)

// DispatchError wraps the failure of a single item.
type DispatchError struct {
	Item domain.Item
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %q (%s): %v", e.Item.Name, e.Item.Kind(), e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Outcome records what happened to one dispatched item.
type Outcome struct {
	Item     domain.Item
	Kind     domain.Kind
	Path     string
	Duration time.Duration
	Err      error
}

// OK reports whether the artifact was written.
func (o Outcome) OK() bool { return o.Err == nil }

// Options configures a Router.
type Options struct {
	OutputDir      string
	ResolveTimeout time.Duration
	Resolver       Resolver
	Fetcher        Fetcher
	DecodeName     NameDecoder
	Fs             afero.Fs
	Logger         logger.Logger
}

// Router holds no per-item state and may be used concurrently for distinct items.
type Router struct {
	outputDir string
	timeout   time.Duration
	resolver  Resolver
	fetcher   Fetcher
	decode    NameDecoder
	fs        afero.Fs
	log       logger.Logger
}

// NewRouter validates opts and returns a Router.
func NewRouter(opts Options) (*Router, error) {
	if opts.OutputDir == "" {
		return nil, errors.New("dispatch: output dir is empty")
	}
	if opts.Resolver == nil {
		return nil, errors.New("dispatch: resolver is nil")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("dispatch: fetcher is nil")
	}
	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Router{
		outputDir: opts.OutputDir,
		timeout:   opts.ResolveTimeout,
		resolver:  opts.Resolver,
		fetcher:   opts.Fetcher,
		decode:    opts.DecodeName,
		fs:        fsys,
		log:       logger.Ensure(opts.Logger),
	}, nil
}

// Path returns where the artifact for item is written.
func (r *Router) Path(item domain.Item) string {
	return filepath.Join(r.outputDir, item.FileName())
}

// Dispatch fetches one item. Errors are reported in the Outcome as *DispatchError.
func (r *Router) Dispatch(ctx context.Context, item domain.Item) Outcome {
	start := time.Now()
	out := Outcome{Item: item, Kind: item.Kind(), Path: r.Path(item)}

	var err error
	switch out.Kind {
	case domain.KindResolvable:
		err = r.resolve(ctx, item, out.Path)
	default:
		err = r.fetcher.Fetch(ctx, item.SourceReference, out.Path)
	}

	out.Duration = time.Since(start)
	if err != nil {
		out.Err = &DispatchError{Item: item, Err: err}
	}
	return out
}

func (r *Router) resolve(ctx context.Context, item domain.Item, dest string) error {
	data, err := r.resolver.Resolve(ctx, item.SourceReference, r.timeout)
	if err != nil {
		return err
	}
	if r.decode != nil {
		name, err := r.decode(data)
		if err != nil {
			return fmt.Errorf("invalid metainfo: %w", err)
		}
		r.log.DebugObj("resolved metainfo", "metainfo", map[string]string{
			"item":      item.Name,
			"info_name": name,
		})
	}
	return writeAtomic(r.fs, dest, data)
}

func writeAtomic(fsys afero.Fs, path string, data []byte) error {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp := path + ".part"
	if err := afero.WriteFile(fsys, tmp, data, 0o644); err != nil {
		_ = fsys.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := fsys.Rename(tmp, path); err != nil {
		_ = fsys.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
