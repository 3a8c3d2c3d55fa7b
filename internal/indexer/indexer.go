package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dshills/hastemap/internal/cache"
	"github.com/dshills/hastemap/internal/chunker"
	"github.com/dshills/hastemap/internal/parser"
	"github.com/dshills/hastemap/pkg/types"
)

// Index sources reported in Statistics
const (
	SourceScan  = "scan"
	SourceCache = "cache"
)

// CacheStore persists a built index between runs
type CacheStore interface {
	Present() bool
	Read(ctx context.Context, root string) (types.DependencyIndex, error)
	Write(ctx context.Context, root string, idx types.DependencyIndex) (*cache.Manifest, error)
}

// Indexer coordinates the pipeline: discover -> extract -> cache
type Indexer struct {
	extractor parser.Extractor
	cache     CacheStore
	logger    *log.Logger
	config    Config
}

// Config contains configuration for the indexer
type Config struct {
	Workers         int      // Number of concurrent workers (default: runtime.NumCPU())
	ChunkRefinement int      // Chunks per worker during extraction (default: chunker.DefaultRefinement)
	Extensions      []string // Source extensions without dot (default: DefaultExtensions)
	Ignore          []string // Doublestar patterns excluded from discovery
}

// Statistics contains statistics about a BuildOrLoad or Build run
type Statistics struct {
	Source          string // SourceScan or SourceCache
	FilesDiscovered int
	FilesIndexed    int
	FilesSkipped    int
	ChunksProcessed int
	CacheChunks     int
	BuildID         string
	Duration        time.Duration
}

// New creates an Indexer using the regex extractor. A nil store disables
// caching; a nil logger discards log output.
func New(store CacheStore, config *Config, logger *log.Logger) *Indexer {
	return NewWithExtractor(store, parser.New(), config, logger)
}

// NewWithExtractor creates an Indexer with a custom extractor
func NewWithExtractor(store CacheStore, extractor parser.Extractor, config *Config, logger *log.Logger) *Indexer {
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.ChunkRefinement <= 0 {
		cfg.ChunkRefinement = chunker.DefaultRefinement
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &Indexer{
		extractor: extractor,
		cache:     store,
		logger:    logger,
		config:    cfg,
	}
}

// BuildOrLoad reads the index from the cache when one written for rootPath
// is present and otherwise scans rootPath and writes a new cache. An
// incomplete, incompatible or foreign cache is rebuilt; an undecodable chunk
// is an error.
func (idx *Indexer) BuildOrLoad(ctx context.Context, rootPath string) (types.DependencyIndex, *Statistics, error) {
	root, err := ResolveRoot(rootPath)
	if err != nil {
		return nil, nil, err
	}

	if idx.cache != nil && idx.cache.Present() {
		start := time.Now()
		index, err := idx.cache.Read(ctx, root)
		switch {
		case err == nil:
			idx.logger.Info("loaded haste map from cache", "files", index.Len(), "duration", time.Since(start))
			return index, &Statistics{
				Source:       SourceCache,
				FilesIndexed: index.Len(),
				Duration:     time.Since(start),
			}, nil
		case errors.Is(err, cache.ErrIncompleteCache),
			errors.Is(err, cache.ErrIncompatibleFormat),
			errors.Is(err, cache.ErrRootMismatch):
			idx.logger.Warn("discarding cache", "err", err)
		default:
			return nil, nil, fmt.Errorf("failed to read cache: %w", err)
		}
	} else {
		idx.logger.Info("no cache found, recalculating")
	}

	return idx.build(ctx, root)
}

// Build scans rootPath and replaces the cache with the result
func (idx *Indexer) Build(ctx context.Context, rootPath string) (types.DependencyIndex, *Statistics, error) {
	root, err := ResolveRoot(rootPath)
	if err != nil {
		return nil, nil, err
	}
	return idx.build(ctx, root)
}

// build scans an already resolved root and rewrites the cache
func (idx *Indexer) build(ctx context.Context, root string) (types.DependencyIndex, *Statistics, error) {
	index, stats, err := idx.scan(ctx, root)
	if err != nil {
		return nil, nil, err
	}
	if idx.cache == nil {
		return index, stats, nil
	}

	start := time.Now()
	manifest, err := idx.cache.Write(ctx, root, index)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to write cache: %w", err)
	}
	stats.CacheChunks = manifest.Chunks
	stats.BuildID = manifest.BuildID
	stats.Duration += time.Since(start)
	idx.logger.Info("wrote cache", "chunks", manifest.Chunks, "build_id", manifest.BuildID)

	return index, stats, nil
}

// Scan discovers and extracts rootPath without touching the cache
func (idx *Indexer) Scan(ctx context.Context, rootPath string) (types.DependencyIndex, *Statistics, error) {
	root, err := ResolveRoot(rootPath)
	if err != nil {
		return nil, nil, err
	}
	return idx.scan(ctx, root)
}

// scan indexes an already resolved root
func (idx *Indexer) scan(ctx context.Context, root string) (types.DependencyIndex, *Statistics, error) {
	startTime := time.Now()

	// Discover source files
	fsys := os.DirFS(root)
	files, err := discoverFiles(fsys, idx.config.Extensions, idx.config.Ignore)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to discover files: %w", err)
	}
	idx.logger.Info("found files", "count", len(files), "duration", time.Since(startTime))

	// Extract dependencies concurrently
	parseStart := time.Now()
	p := &pipeline{
		fsys:      fsys,
		root:      root,
		extractor: idx.extractor,
		chunker:   chunker.New(idx.config.Workers, idx.config.ChunkRefinement),
	}
	res, err := p.run(ctx, files)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to index files: %w", err)
	}
	idx.logger.Info("parsed files", "indexed", res.index.Len(), "chunks", res.chunks, "duration", time.Since(parseStart))
	if res.skipped > 0 {
		idx.logger.Info("skipped unreadable files", "count", res.skipped)
	}

	return res.index, &Statistics{
		Source:          SourceScan,
		FilesDiscovered: len(files),
		FilesIndexed:    res.index.Len(),
		FilesSkipped:    res.skipped,
		ChunksProcessed: res.chunks,
		Duration:        time.Since(startTime),
	}, nil
}

// ResolveRoot canonicalizes a project path and checks it is a directory
func ResolveRoot(rootPath string) (string, error) {
	if rootPath == "" {
		return "", fmt.Errorf("%w: empty path", types.ErrProjectNotFound)
	}

	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrProjectNotFound, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrProjectNotFound, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrProjectNotFound, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", types.ErrProjectNotFound, resolved)
	}
	return resolved, nil
}
