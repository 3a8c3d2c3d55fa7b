// Package hastemap is the embedding API for Go hosts: build or load the
// module dependency map of a JavaScript project in one call.
//
//	index, err := hastemap.BuildOrLoad(ctx, "/path/to/project",
//	    hastemap.WithCacheDir("/tmp/hm-cache"),
//	    hastemap.WithParallelism(8),
//	)
//	deps := hastemap.ToMap(index)["/path/to/project/src/app.js"]
package hastemap

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/dshills/hastemap/internal/cache"
	"github.com/dshills/hastemap/internal/canonical"
	"github.com/dshills/hastemap/internal/config"
	"github.com/dshills/hastemap/internal/indexer"
	"github.com/dshills/hastemap/pkg/types"
)

// Option configures BuildOrLoad
type Option func(*options)

type options struct {
	cfg    *config.Config
	logger *log.Logger
	force  bool
	noDisk bool
}

// WithCacheDir sets the chunk cache directory
func WithCacheDir(dir string) Option {
	return func(o *options) { o.cfg.CacheDir = dir }
}

// WithParallelism sets the number of extraction workers
func WithParallelism(n int) Option {
	return func(o *options) { o.cfg.Parallelism = n }
}

// WithChunkFactor sets the number of extraction chunks per worker
func WithChunkFactor(n int) Option {
	return func(o *options) { o.cfg.ChunkFactor = n }
}

// WithCompression writes zstd-compressed cache chunks
func WithCompression(enabled bool) Option {
	return func(o *options) { o.cfg.Compress = enabled }
}

// WithLegacyCache treats any existing cache directory as complete
func WithLegacyCache(enabled bool) Option {
	return func(o *options) { o.cfg.LegacyCache = enabled }
}

// WithExtensions sets the indexed file extensions, without dots
func WithExtensions(exts ...string) Option {
	return func(o *options) { o.cfg.Extensions = exts }
}

// WithIgnore excludes files matching the doublestar patterns
func WithIgnore(patterns ...string) Option {
	return func(o *options) { o.cfg.Ignore = patterns }
}

// WithLogger sets the logger; the default discards output
func WithLogger(logger *log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithForceRebuild rescans the project even when a cache is present
func WithForceRebuild() Option {
	return func(o *options) { o.force = true }
}

// WithoutCache scans without reading or writing the chunk cache
func WithoutCache() Option {
	return func(o *options) { o.noDisk = true }
}

// BuildOrLoad returns the index of projectPath, reading the chunk cache when
// it is present and scanning (then caching) otherwise
func BuildOrLoad(ctx context.Context, projectPath string, opts ...Option) (types.DependencyIndex, error) {
	o := &options{cfg: config.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	var store indexer.CacheStore
	if !o.noDisk {
		store = cache.New(o.cfg.CacheOptions())
	}
	idx := indexer.New(store, o.cfg.IndexerConfig(), o.logger)

	var (
		index types.DependencyIndex
		err   error
	)
	switch {
	case o.noDisk:
		index, _, err = idx.Scan(ctx, projectPath)
	case o.force:
		index, _, err = idx.Build(ctx, projectPath)
	default:
		index, _, err = idx.BuildOrLoad(ctx, projectPath)
	}
	if err != nil {
		return nil, err
	}
	return index, nil
}

// ToMap converts an index to a path -> dependencies mapping
func ToMap(index types.DependencyIndex) map[string][]string {
	return index.ToMap()
}

// Canonical renders an index in the sorted line format used for comparisons
func Canonical(index types.DependencyIndex) string {
	return canonical.Render(index)
}
