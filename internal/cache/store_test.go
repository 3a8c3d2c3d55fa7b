package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hastemap/pkg/types"
)

// makeIndex builds an index with n records
func makeIndex(n int) types.DependencyIndex {
	idx := make(types.DependencyIndex, 0, n)
	for i := 0; i < n; i++ {
		idx = append(idx, types.SourceRecord{
			Path:         fmt.Sprintf("/repo/pkg%d/file%d.js", i%3, i),
			Dependencies: []string{fmt.Sprintf("dep%d", i), "./shared"},
		})
	}
	return idx
}

func TestNew_Defaults(t *testing.T) {
	s := New(Options{})
	assert.Equal(t, DefaultDir, s.Dir())
	assert.GreaterOrEqual(t, s.chunker.Parallelism(), 1)
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	idx := makeIndex(25)

	for _, parallelism := range []int{1, 3, 8, 64} {
		for _, compress := range []bool{false, true} {
			t.Run(fmt.Sprintf("p%d_compress_%v", parallelism, compress), func(t *testing.T) {
				s := New(Options{Dir: filepath.Join(t.TempDir(), "cache"), Parallelism: parallelism, Compress: compress})

				m, err := s.Write(ctx, "/repo", idx)
				require.NoError(t, err)
				assert.Equal(t, idx.Len(), m.Records)
				assert.Equal(t, compress, m.Compressed)
				assert.NotEmpty(t, m.BuildID)

				got, err := s.Read(ctx, "/repo")
				require.NoError(t, err)
				assert.Equal(t, idx.Sorted(), got.Sorted())
			})
		}
	}
}

func TestStore_ThreeChunkFiles(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "cache")
	s := New(Options{Dir: dir, Parallelism: 3})

	idx := makeIndex(9)
	m, err := s.Write(ctx, "/repo", idx)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Chunks)

	for i := 0; i < 3; i++ {
		assert.FileExists(t, filepath.Join(dir, fmt.Sprintf("%d.bin", i)))
	}
	assert.FileExists(t, filepath.Join(dir, ManifestName))

	got, err := s.Read(ctx, "/repo")
	require.NoError(t, err)
	// Chunks are concatenated in chunk order, so order matches too
	assert.Equal(t, idx, got)
}

func TestStore_Present(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "cache")
	s := New(Options{Dir: dir})
	legacy := New(Options{Dir: dir, Legacy: true})

	assert.False(t, s.Present())
	assert.False(t, legacy.Present())

	require.NoError(t, os.MkdirAll(dir, 0755))
	assert.False(t, s.Present(), "empty directory is not a complete cache")
	assert.True(t, legacy.Present(), "legacy mode only checks the directory")

	_, err := s.Write(ctx, "/repo", makeIndex(2))
	require.NoError(t, err)
	assert.True(t, s.Present())
}

func TestStore_MissingChunkDetected(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "cache")
	s := New(Options{Dir: dir, Parallelism: 3})

	_, err := s.Write(ctx, "/repo", makeIndex(9))
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "1.bin")))

	_, err = s.Read(ctx, "/repo")
	assert.ErrorIs(t, err, ErrIncompleteCache)
}

func TestStore_LegacyPartialCacheIsTruncated(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "cache")
	s := New(Options{Dir: dir, Parallelism: 3, Legacy: true})

	_, err := s.Write(ctx, "/repo", makeIndex(9))
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "1.bin")))

	got, err := s.Read(ctx, "/repo")
	require.NoError(t, err)
	assert.Equal(t, 6, got.Len())
}

func TestStore_MissingManifest(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "cache")
	s := New(Options{Dir: dir})

	_, err := s.Write(ctx, "/repo", makeIndex(4))
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, ManifestName)))

	assert.False(t, s.Present())
	_, err = s.Read(ctx, "/repo")
	assert.ErrorIs(t, err, ErrIncompleteCache)
}

func TestStore_MalformedChunkIsFatal(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "cache")
	s := New(Options{Dir: dir, Parallelism: 2})

	_, err := s.Write(ctx, "/repo", makeIndex(4))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0.bin"), []byte{0x0a, 0x7f}, 0644))

	_, err = s.Read(ctx, "/repo")
	assert.ErrorIs(t, err, ErrMalformedChunk)
}

func TestStore_CorruptCompressedChunk(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "cache")
	s := New(Options{Dir: dir, Parallelism: 2, Compress: true})

	_, err := s.Write(ctx, "/repo", makeIndex(4))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0.bin.zst"), []byte("not zstd"), 0644))

	_, err = s.Read(ctx, "/repo")
	assert.ErrorIs(t, err, ErrMalformedChunk)
}

func TestStore_RewriteRemovesStaleChunks(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "cache")
	s := New(Options{Dir: dir, Parallelism: 4})

	_, err := s.Write(ctx, "/repo", makeIndex(40))
	require.NoError(t, err)
	m, err := s.Write(ctx, "/repo", makeIndex(2))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Chunks)

	files, err := s.listChunks()
	require.NoError(t, err)
	assert.Len(t, files, 2)

	got, err := s.Read(ctx, "/repo")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
}

func TestStore_EmptyIndex(t *testing.T) {
	ctx := context.Background()
	s := New(Options{Dir: filepath.Join(t.TempDir(), "cache")})

	m, err := s.Write(ctx, "/repo", types.DependencyIndex{})
	require.NoError(t, err)
	assert.Equal(t, 0, m.Chunks)

	got, err := s.Read(ctx, "/repo")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_IncompatibleFormat(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "cache")
	s := New(Options{Dir: dir})

	_, err := s.Write(ctx, "/repo", makeIndex(1))
	require.NoError(t, err)

	manifest := `{"format_version": "2.0.0", "root": "/repo", "chunks": 1, "records": 1}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), []byte(manifest), 0644))

	_, err = s.Read(ctx, "/repo")
	assert.ErrorIs(t, err, ErrIncompatibleFormat)
}

func TestStore_IgnoresForeignFiles(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "cache")
	s := New(Options{Dir: dir, Parallelism: 2})

	idx := makeIndex(4)
	_, err := s.Write(ctx, "/repo", idx)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "9.bin"), 0755))

	got, err := s.Read(ctx, "/repo")
	require.NoError(t, err)
	assert.Equal(t, idx, got)
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "cache")
	s := New(Options{Dir: dir})

	_, err := s.Write(ctx, "/repo", makeIndex(1))
	require.NoError(t, err)
	require.NoError(t, s.Clear())
	assert.NoDirExists(t, dir)
}

func TestStore_RootMismatch(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "cache")

	_, err := New(Options{Dir: dir}).Write(ctx, "/repo", makeIndex(3))
	require.NoError(t, err)

	_, err = New(Options{Dir: dir}).Read(ctx, "/other")
	assert.ErrorIs(t, err, ErrRootMismatch)

	got, err := New(Options{Dir: dir, Legacy: true}).Read(ctx, "/other")
	require.NoError(t, err, "legacy caches carry no root")
	assert.Equal(t, 3, got.Len())
}
