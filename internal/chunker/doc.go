// Package chunker decides how work is divided into contiguous chunks.
//
// Both the extraction pipeline and the cache store partition a list by the
// same heuristic: chunk size = max(1, n/parallelism). The pipeline adds a
// refinement factor on top so there are several chunks per worker:
//
//	c := chunker.New(runtime.NumCPU(), chunker.DefaultRefinement)
//	for _, chunk := range chunker.SplitItems(c, files) {
//	    // one task per chunk
//	}
//
// The cache store uses a refinement of 1, giving roughly one chunk file per
// worker.
//
// Chunk boundaries carry no meaning; they only affect load balancing and
// I/O batching.
package chunker
