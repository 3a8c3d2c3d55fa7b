// Package mcp implements the Model Context Protocol (MCP) server for hastemap.
//
// The MCP server exposes four tools to hosts that need a project's module
// dependency map:
//   - build_haste_map: Build (or load from cache) the haste map of a project
//   - get_dependencies: List the specifiers one file depends on
//   - find_dependents: List the files that reference a specifier
//   - get_status: Report what is known about a project
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// # Basic Usage
//
// The MCP server is started via the serve command:
//
//	hastemap serve --db ~/.hastemap/mirror.db
//
// # Tool: build_haste_map
//
//	Request:
//	{
//	  "name": "build_haste_map",
//	  "arguments": {
//	    "path": "/path/to/project",
//	    "force_rebuild": false
//	  }
//	}
//
//	Response:
//	{
//	  "root": "/path/to/project",
//	  "source": "scan",
//	  "files_indexed": 1204,
//	  "files_skipped": 0,
//	  "chunks": 80,
//	  "build_id": "5f0c...",
//	  "duration_ms": 310,
//	  "haste_map": {"/path/to/project/src/app.js": ["./a", "react"]}
//	}
//
// Each project root gets its own chunk cache directory under the configured
// cache dir. Built indexes stay in an in-memory LRU keyed by root. When a
// SQLite mirror is configured, every build is also written there so that
// lookups keep working after the LRU evicts a project or the server restarts.
//
// # Error Handling
//
// Errors are returned as MCPError with JSON-RPC codes:
//   - -32602: invalid parameters
//   - -32603: internal error
//   - -32001: project path not found
//   - -32002: a build of the same root is already running
//   - -32003: project not indexed
//   - -32004: file not in the haste map
package mcp
