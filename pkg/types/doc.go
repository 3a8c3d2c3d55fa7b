// Package types provides shared type definitions for the hastemap indexer.
//
// A haste map is a flat mapping from source file to the module specifiers it
// imports or requires. It is represented as a DependencyIndex, an ordered
// collection of SourceRecord values:
//
//	idx := types.DependencyIndex{
//	    {Path: "/repo/src/app.js", Dependencies: []string{"./util", "react"}},
//	}
//
// Record order follows chunk-processing order and is not deterministic across
// runs. Callers that need a stable order use Sorted, or render the index with
// the canonical package.
//
// # Host mapping
//
// ToMap converts an index to the path -> dependencies mapping handed to hosts
// (the MCP server and the pkg/hastemap facade):
//
//	m := idx.ToMap()
//	deps := m["/repo/src/app.js"]
//
// # Validation
//
// Validate checks the per-record invariants: non-empty path and unique
// dependency specifiers.
package types
