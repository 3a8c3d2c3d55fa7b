package indexer

import (
	"context"
	"io/fs"
	"path/filepath"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/hastemap/internal/chunker"
	"github.com/dshills/hastemap/internal/parser"
	"github.com/dshills/hastemap/pkg/types"
)

// pipeline runs the extractor over discovered files in parallel chunks
type pipeline struct {
	fsys      fs.FS
	root      string
	extractor parser.Extractor
	chunker   *chunker.Chunker
}

// pipelineResult is the merged output of every chunk
type pipelineResult struct {
	index   types.DependencyIndex
	skipped int
	chunks  int
}

// chunkResult is owned by exactly one task until the barrier
type chunkResult struct {
	records []types.SourceRecord
	skipped int
}

// run extracts dependencies for files. Each chunk is one task; tasks share
// nothing and their results are concatenated after all of them finish.
func (p *pipeline) run(ctx context.Context, files []string) (*pipelineResult, error) {
	chunks := chunker.SplitItems(p.chunker, files)
	results := make([]chunkResult, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.chunker.Parallelism())
	for i, chunk := range chunks {
		g.Go(func() error {
			res, err := p.processChunk(gctx, chunk)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &pipelineResult{
		index:  make(types.DependencyIndex, 0, len(files)),
		chunks: len(chunks),
	}
	for _, res := range results {
		out.index = append(out.index, res.records...)
		out.skipped += res.skipped
	}
	return out, nil
}

// processChunk reads and extracts every file in the chunk. Files that cannot
// be read or are not valid UTF-8 text are skipped.
func (p *pipeline) processChunk(ctx context.Context, files []string) (chunkResult, error) {
	res := chunkResult{records: make([]types.SourceRecord, 0, len(files))}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		content, err := fs.ReadFile(p.fsys, rel)
		if err != nil || !utf8.Valid(content) {
			res.skipped++
			continue
		}

		res.records = append(res.records, types.SourceRecord{
			Path:         filepath.Join(p.root, filepath.FromSlash(rel)),
			Dependencies: p.extractor.Extract(string(content)),
		})
	}
	return res, nil
}
