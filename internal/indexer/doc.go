// Package indexer builds the haste map of a JavaScript project.
//
// The indexer runs a three-stage pipeline:
//
//  1. Discovery: glob the project root for source files (default: */**/*.js),
//     skipping files directly under the root and any ignore patterns
//  2. Extraction: split the file list into chunks and extract dependencies
//     from each chunk concurrently, one task per chunk
//  3. Cache: write the index as chunk files plus a manifest
//
// # Basic Usage
//
//	store := cache.New(cache.Options{Dir: "cache"})
//	idx := indexer.New(store, &indexer.Config{Workers: 8}, logger)
//
//	index, stats, err := idx.BuildOrLoad(ctx, "/path/to/project")
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("%d files from %s in %v\n", stats.FilesIndexed, stats.Source, stats.Duration)
//
// BuildOrLoad reads the cache when it is present and scans otherwise. Build
// always scans and replaces the cache. Scan never touches the cache.
//
// # Error Handling
//
// Files that cannot be read or are not valid UTF-8 are skipped and counted
// in Statistics.FilesSkipped. An incomplete or incompatible cache is logged
// and rebuilt. Discovery failures, undecodable cache chunks and cache write
// failures are returned to the caller.
//
// # Concurrency
//
// Each chunk task writes only its own result slot, so the output order is
// the discovery order regardless of scheduling. BuildLock lets callers that
// serve several requests reject a second build of the same root.
package indexer
