package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strconv"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/hastemap/internal/chunker"
	"github.com/dshills/hastemap/pkg/types"
)

const (
	// DefaultDir is the cache directory used when none is configured
	DefaultDir = "cache"

	// ManifestName is the completion marker written after every chunk file
	ManifestName = "manifest.json"

	// FormatVersion is the version of the chunk and manifest format
	FormatVersion = "1.0.0"

	chunkExt = ".bin"
	zstdExt  = ".zst"
)

var (
	// ErrIncompleteCache is returned when the cache directory does not hold
	// everything its manifest describes
	ErrIncompleteCache = errors.New("incomplete cache")
	// ErrMalformedChunk is returned when a chunk file cannot be decoded
	ErrMalformedChunk = errors.New("malformed cache chunk")
	// ErrIncompatibleFormat is returned for a cache written by another major format version
	ErrIncompatibleFormat = errors.New("incompatible cache format")
	// ErrRootMismatch is returned when the cache was written for another project root
	ErrRootMismatch = errors.New("cache belongs to another root")
)

var chunkFilePattern = regexp.MustCompile(`^(\d+)\.bin(\.zst)?$`)

// Options configures a Store
type Options struct {
	Dir         string // Cache directory (default: DefaultDir)
	Parallelism int    // Workers used to size chunks and decode (default: runtime.NumCPU())
	Compress    bool   // Write zstd-compressed chunk files
	// Legacy treats an existing directory as a complete cache and ignores
	// the manifest. A partial directory then yields a truncated index.
	Legacy bool
}

// Manifest describes a fully written cache
type Manifest struct {
	FormatVersion string    `json:"format_version"`
	BuildID       string    `json:"build_id"`
	Root          string    `json:"root"`
	Chunks        int       `json:"chunks"`
	Records       int       `json:"records"`
	Compressed    bool      `json:"compressed"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store reads and writes the chunked on-disk cache
type Store struct {
	dir      string
	chunker  *chunker.Chunker
	compress bool
	legacy   bool
}

// New creates a Store. It does not touch the filesystem.
func New(opts Options) *Store {
	if opts.Dir == "" {
		opts.Dir = DefaultDir
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.NumCPU()
	}
	return &Store{
		dir:      opts.Dir,
		chunker:  chunker.New(opts.Parallelism, 1),
		compress: opts.Compress,
		legacy:   opts.Legacy,
	}
}

// Dir returns the cache directory
func (s *Store) Dir() string {
	return s.dir
}

// Present reports whether a cache should be read instead of rebuilt.
// In legacy mode any existing directory counts; otherwise the manifest
// must exist.
func (s *Store) Present() bool {
	if s.legacy {
		info, err := os.Stat(s.dir)
		return err == nil && info.IsDir()
	}
	_, err := os.Stat(filepath.Join(s.dir, ManifestName))
	return err == nil
}

// ReadManifest loads the manifest of the cache directory
func (s *Store) ReadManifest() (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, ManifestName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: manifest missing in %s", ErrIncompleteCache, s.dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: invalid manifest: %v", ErrIncompleteCache, err)
	}
	if err := checkFormat(m.FormatVersion); err != nil {
		return nil, err
	}
	return &m, nil
}

// checkFormat accepts any version with the same major as FormatVersion
func checkFormat(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: bad version %q", ErrIncompatibleFormat, version)
	}
	current := semver.MustParse(FormatVersion)
	if v.Major() != current.Major() {
		return fmt.Errorf("%w: cache is %s, reader is %s", ErrIncompatibleFormat, v, current)
	}
	return nil
}

// Write replaces the cache contents with idx. Chunk files are named by
// position (0.bin, 1.bin, ...) and the manifest is written last.
func (s *Store) Write(ctx context.Context, root string, idx types.DependencyIndex) (*Manifest, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	// Drop the completion marker first so an interrupted write is never
	// mistaken for a complete cache
	if err := os.Remove(filepath.Join(s.dir, ManifestName)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove manifest: %w", err)
	}
	if err := s.removeChunks(); err != nil {
		return nil, err
	}

	var enc *zstd.Encoder
	if s.compress {
		var err error
		enc, err = zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		defer func() { _ = enc.Close() }()
	}

	chunks := chunker.Split(idx, s.chunker.Size(idx.Len()))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.chunker.Parallelism())
	for i, chunk := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data := EncodeChunk(chunk)
			if enc != nil {
				data = enc.EncodeAll(data, nil)
			}
			if err := os.WriteFile(s.chunkPath(i), data, 0644); err != nil {
				return fmt.Errorf("failed to write cache chunk %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := &Manifest{
		FormatVersion: FormatVersion,
		BuildID:       uuid.NewString(),
		Root:          root,
		Chunks:        len(chunks),
		Records:       idx.Len(),
		Compressed:    s.compress,
		CreatedAt:     time.Now().UTC(),
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, ManifestName), data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	return m, nil
}

// Read loads every chunk file in the cache directory and concatenates them
// in chunk order. Chunks are decoded in parallel. The manifest must name
// root; legacy caches have no manifest and are not checked.
func (s *Store) Read(ctx context.Context, root string) (types.DependencyIndex, error) {
	files, err := s.listChunks()
	if err != nil {
		return nil, err
	}

	var manifest *Manifest
	if !s.legacy {
		manifest, err = s.ReadManifest()
		if err != nil {
			return nil, err
		}
		if manifest.Root != root {
			return nil, fmt.Errorf("%w: written for %s, want %s", ErrRootMismatch, manifest.Root, root)
		}
		if err := verifyChunks(files, manifest.Chunks); err != nil {
			return nil, err
		}
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	results := make([][]types.SourceRecord, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.chunker.Parallelism())
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records, err := s.readChunk(dec, f)
			if err != nil {
				return err
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	idx := make(types.DependencyIndex, 0)
	for _, records := range results {
		idx = append(idx, records...)
	}

	if manifest != nil && idx.Len() != manifest.Records {
		return nil, fmt.Errorf("%w: manifest has %d records, chunks have %d",
			ErrIncompleteCache, manifest.Records, idx.Len())
	}
	return idx, nil
}

// Clear removes the cache directory
func (s *Store) Clear() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// chunkFile is a chunk file found in the cache directory
type chunkFile struct {
	index      int
	name       string
	compressed bool
}

// listChunks returns the chunk files sorted by index
func (s *Store) listChunks() ([]chunkFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache directory: %w", err)
	}

	files := make([]chunkFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := chunkFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		files = append(files, chunkFile{index: n, name: e.Name(), compressed: m[2] != ""})
	}

	slices.SortFunc(files, func(a, b chunkFile) int {
		return a.index - b.index
	})
	return files, nil
}

// verifyChunks checks that files are exactly chunks 0..want-1
func verifyChunks(files []chunkFile, want int) error {
	if len(files) != want {
		return fmt.Errorf("%w: manifest lists %d chunks, found %d", ErrIncompleteCache, want, len(files))
	}
	for i, f := range files {
		if f.index != i {
			return fmt.Errorf("%w: chunk %d missing", ErrIncompleteCache, i)
		}
	}
	return nil
}

func (s *Store) readChunk(dec *zstd.Decoder, f chunkFile) ([]types.SourceRecord, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, f.name))
	if err != nil {
		return nil, fmt.Errorf("failed to read cache chunk %s: %w", f.name, err)
	}
	if f.compressed {
		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedChunk, f.name, err)
		}
	}
	records, err := DecodeChunk(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.name, err)
	}
	return records, nil
}

func (s *Store) removeChunks() error {
	files, err := s.listChunks()
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := os.Remove(filepath.Join(s.dir, f.name)); err != nil {
			return fmt.Errorf("failed to remove stale chunk %s: %w", f.name, err)
		}
	}
	return nil
}

func (s *Store) chunkPath(i int) string {
	name := strconv.Itoa(i) + chunkExt
	if s.compress {
		name += zstdExt
	}
	return filepath.Join(s.dir, name)
}
