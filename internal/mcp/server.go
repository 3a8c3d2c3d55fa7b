package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/hastemap/internal/cache"
	"github.com/dshills/hastemap/internal/config"
	"github.com/dshills/hastemap/internal/indexer"
	"github.com/dshills/hastemap/internal/storage"
	"github.com/dshills/hastemap/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "hastemap"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// DefaultIndexCacheSize is the number of built indexes kept in memory
	DefaultIndexCacheSize = 16
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	cfg     *config.Config
	storage storage.Storage // nil when the SQLite mirror is disabled
	logger  *log.Logger
	indexes *lru.Cache[string, *builtIndex]
	lock    indexer.BuildLock
}

// builtIndex is an index held in memory for one project root
type builtIndex struct {
	root    string
	index   types.DependencyIndex
	stats   *indexer.Statistics
	buildID string
	builtAt time.Time
}

// NewServer creates a new MCP server instance. store may be nil; logger
// defaults to a discarding logger.
func NewServer(cfg *config.Config, store storage.Storage, logger *log.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}

	indexes, err := lru.New[string, *builtIndex](DefaultIndexCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create index cache: %w", err)
	}

	s := &Server{
		mcp:     server.NewMCPServer(ServerName, ServerVersion),
		cfg:     cfg,
		storage: store,
		logger:  logger,
		indexes: indexes,
	}

	s.registerTools()
	return s, nil
}

// Serve runs the MCP server on stdio until ctx is done or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	return s.serve(ctx, os.Stdin, os.Stdout)
}

func (s *Server) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	defer func() { _ = s.Close() }()

	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(s.logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}))
	return stdio.Listen(ctx, in, out)
}

// Close releases the storage mirror, if any
func (s *Server) Close() error {
	if s.storage == nil {
		return nil
	}
	return s.storage.Close()
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(buildHasteMapTool(), s.handleBuildHasteMap)
	s.mcp.AddTool(getDependenciesTool(), s.handleGetDependencies)
	s.mcp.AddTool(listFilesTool(), s.handleListFiles)
	s.mcp.AddTool(findDependentsTool(), s.handleFindDependents)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}

// cacheStore returns the chunk cache for root. Every root gets its own
// directory under the configured cache dir.
func (s *Server) cacheStore(root string) *cache.Store {
	opts := s.cfg.CacheOptions()
	opts.Dir = filepath.Join(opts.Dir, projectKey(root))
	return cache.New(opts)
}

// projectKey names the cache directory of a root
func projectKey(root string) string {
	sum := sha256.Sum256([]byte(root))
	return hex.EncodeToString(sum[:8])
}

// build loads or rebuilds the index of root and mirrors it to storage
func (s *Server) build(ctx context.Context, root string, force bool) (*builtIndex, error) {
	store := s.cacheStore(root)
	idx := indexer.New(store, s.cfg.IndexerConfig(), s.logger)

	var (
		index types.DependencyIndex
		stats *indexer.Statistics
		err   error
	)
	if force {
		index, stats, err = idx.Build(ctx, root)
	} else {
		index, stats, err = idx.BuildOrLoad(ctx, root)
	}
	if err != nil {
		return nil, err
	}

	buildID := stats.BuildID
	if buildID == "" {
		// Loaded from cache; legacy caches have no manifest
		if m, err := store.ReadManifest(); err == nil {
			buildID = m.BuildID
		}
	}

	built := &builtIndex{
		root:    root,
		index:   index,
		stats:   stats,
		buildID: buildID,
		builtAt: time.Now(),
	}
	s.indexes.Add(root, built)

	if s.storage != nil {
		if err := s.mirror(ctx, built); err != nil {
			return nil, err
		}
	}
	return built, nil
}

func (s *Server) mirror(ctx context.Context, built *builtIndex) error {
	project, err := s.storage.GetOrCreateProject(ctx, built.root)
	if err != nil {
		return fmt.Errorf("failed to register project: %w", err)
	}
	if project.BuildID != "" && project.BuildID == built.buildID {
		return nil
	}
	if err := s.storage.ReplaceIndex(ctx, project.ID, built.buildID, built.index); err != nil {
		return fmt.Errorf("failed to mirror index: %w", err)
	}
	s.logger.Debug("mirrored index", "root", built.root, "files", built.index.Len())
	return nil
}
