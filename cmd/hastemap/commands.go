package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dshills/hastemap/internal/cache"
	"github.com/dshills/hastemap/internal/canonical"
	"github.com/dshills/hastemap/internal/config"
	"github.com/dshills/hastemap/internal/indexer"
	"github.com/dshills/hastemap/internal/mcp"
	"github.com/dshills/hastemap/internal/storage"
	"github.com/dshills/hastemap/pkg/types"
)

// errArtifactsDiffer is returned by compare when the inputs are not equal
var errArtifactsDiffer = errors.New("artifacts differ")

// globalFlags holds the persistent flags; zero values mean "not set"
type globalFlags struct {
	configPath  string
	cacheDir    string
	parallelism int
	chunkFactor int
	artifact    string
	compress    bool
	legacyCache bool
	db          string
	logLevel    string
	force       bool
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "hastemap [flags] <project-root>",
		Short: "Build the module dependency map of a JavaScript project",
		Long: `hastemap scans a JavaScript project, extracts the import, export, require
and jest require specifiers of every source file, and caches the result as
chunk files. Later runs load the cache instead of rescanning.

A canonical text rendering of the map is written to the artifact path if
that file does not exist yet.`,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return runBuild(cmd, cfg, newLogger(cmd, cfg), args[0], flags.force)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "YAML config file (default: ./"+config.DefaultFile+" if present)")
	pf.StringVar(&flags.cacheDir, "cache-dir", cache.DefaultDir, "chunk cache directory")
	pf.IntVar(&flags.parallelism, "parallelism", 0, "worker count (default: number of CPUs)")
	pf.IntVar(&flags.chunkFactor, "chunk-factor", 0, "extraction chunks per worker (default: 10)")
	pf.StringVar(&flags.artifact, "artifact", canonical.DefaultArtifactPath, "canonical artifact path")
	pf.BoolVar(&flags.compress, "compress", false, "write zstd-compressed cache chunks")
	pf.BoolVar(&flags.legacyCache, "legacy-cache", false, "treat any existing cache directory as complete")
	pf.StringVar(&flags.db, "db", "", "SQLite mirror path (disabled when empty)")
	pf.StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	cmd.Flags().BoolVar(&flags.force, "force", false, "rescan even when a cache is present")

	cmd.AddCommand(
		newServeCommand(flags),
		newCompareCommand(),
		newCleanCommand(flags),
		newInitCommand(),
		newVersionCommand(),
	)
	return cmd
}

// loadConfig layers the changed flags on top of config.Load
func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("cache-dir") {
		cfg.CacheDir = flags.cacheDir
	}
	if changed("parallelism") {
		cfg.Parallelism = flags.parallelism
	}
	if changed("chunk-factor") {
		cfg.ChunkFactor = flags.chunkFactor
	}
	if changed("artifact") {
		cfg.Artifact = flags.artifact
	}
	if changed("compress") {
		cfg.Compress = flags.compress
	}
	if changed("legacy-cache") {
		cfg.LegacyCache = flags.legacyCache
	}
	if changed("db") {
		cfg.DB = flags.db
	}
	if changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger writes to stderr; stdout is reserved for results and MCP
func newLogger(cmd *cobra.Command, cfg *config.Config) *log.Logger {
	return log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
		Level:           cfg.Level(),
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})
}

func runBuild(cmd *cobra.Command, cfg *config.Config, logger *log.Logger, rootPath string, force bool) error {
	ctx := cmd.Context()

	root, err := indexer.ResolveRoot(rootPath)
	if err != nil {
		return err
	}

	store := cache.New(cfg.CacheOptions())
	idx := indexer.New(store, cfg.IndexerConfig(), logger)

	var (
		index types.DependencyIndex
		stats *indexer.Statistics
	)
	if force {
		index, stats, err = idx.Build(ctx, root)
	} else {
		index, stats, err = idx.BuildOrLoad(ctx, root)
	}
	if err != nil {
		return err
	}
	logger.Info("haste map ready",
		"source", stats.Source,
		"files", stats.FilesIndexed,
		"skipped", stats.FilesSkipped,
		"duration", stats.Duration)

	written, err := canonical.WriteArtifact(cfg.Artifact, index)
	if err != nil {
		return err
	}
	if written {
		logger.Info("wrote artifact", "path", cfg.Artifact)
	} else {
		logger.Debug("artifact exists, not overwritten", "path", cfg.Artifact)
	}

	if cfg.DB == "" {
		return nil
	}
	return mirrorIndex(cmd, cfg, logger, store, root, index, stats)
}

func mirrorIndex(cmd *cobra.Command, cfg *config.Config, logger *log.Logger, store *cache.Store, root string, index types.DependencyIndex, stats *indexer.Statistics) error {
	ctx := cmd.Context()

	db, err := storage.NewSQLiteStorage(cfg.DB)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	buildID := stats.BuildID
	if buildID == "" {
		if m, err := store.ReadManifest(); err == nil {
			buildID = m.BuildID
		}
	}

	project, err := db.GetOrCreateProject(ctx, root)
	if err != nil {
		return err
	}
	if err := db.ReplaceIndex(ctx, project.ID, buildID, index); err != nil {
		return err
	}
	logger.Info("mirrored index", "db", cfg.DB, "files", index.Len())
	return nil
}

func newServeCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve haste maps over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)

			var db storage.Storage
			if cfg.DB != "" {
				sqlite, err := storage.NewSQLiteStorage(cfg.DB)
				if err != nil {
					return err
				}
				db = sqlite
			}

			server, err := mcp.NewServer(cfg, db, logger)
			if err != nil {
				if db != nil {
					_ = db.Close()
				}
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			logger.Info("MCP server ready, listening on stdio", "version", version, "driver", storage.DriverName)
			return server.Serve(cmd.Context())
		},
	}
}

func newCompareCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <expected> <actual>",
		Short: "Compare two canonical artifacts line by line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			diff, err := canonical.CompareFiles(args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if diff.Equal {
				_, _ = fmt.Fprintln(out, "artifacts are identical")
				return nil
			}
			_, _ = fmt.Fprint(out, diff.Text)
			return fmt.Errorf("%w: %d added, %d removed", errArtifactsDiffer, diff.Added, diff.Removed)
		},
	}
}

func newCleanCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove the chunk cache directory and its mirrored project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)
			store := cache.New(cfg.CacheOptions())

			if cfg.DB != "" {
				if err := unmirror(cmd, cfg, logger, store); err != nil {
					return err
				}
			}

			if err := store.Clear(); err != nil {
				return err
			}
			logger.Info("removed cache", "dir", store.Dir())
			return nil
		},
	}
}

// unmirror deletes the mirrored project of the root the cache was built for
func unmirror(cmd *cobra.Command, cfg *config.Config, logger *log.Logger, store *cache.Store) error {
	m, err := store.ReadManifest()
	if err != nil {
		logger.Debug("no manifest, mirror left untouched", "err", err)
		return nil
	}

	db, err := storage.NewSQLiteStorage(cfg.DB)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := cmd.Context()
	project, err := db.GetProject(ctx, m.Root)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := db.DeleteProject(ctx, project.ID); err != nil {
		return err
	}
	logger.Info("removed mirrored project", "root", m.Root, "db", cfg.DB)
	return nil
}

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file with the default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultFile
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.Default().Write(path); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of hastemap",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "hastemap %s\n", version)
			_, _ = fmt.Fprintf(out, "Build Time: %s\n", buildTime)
			_, _ = fmt.Fprintf(out, "Build Mode: %s\n", storage.BuildMode)
			_, _ = fmt.Fprintf(out, "SQLite Driver: %s\n", storage.DriverName)
			_, _ = fmt.Fprintf(out, "Cache Format: %s\n", cache.FormatVersion)
		},
	}
}
