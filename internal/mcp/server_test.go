package mcp

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hastemap/internal/config"
	"github.com/dshills/hastemap/internal/indexer"
	"github.com/dshills/hastemap/internal/storage"
)

// createTestFile creates a file under dir, creating parent directories
func createTestFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func setupProject(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	createTestFile(t, dir, "src/app.js", "import React from 'react';\nimport { a } from './a';\n")
	createTestFile(t, dir, "src/a.js", "const _ = require('lodash');\n")
	createTestFile(t, dir, "src/view.js", "import React from 'react';\n")

	root, err := indexer.ResolveRoot(dir)
	require.NoError(t, err)
	return root
}

func setupServer(t *testing.T, store storage.Storage) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.CacheDir = filepath.Join(t.TempDir(), "cache")
	cfg.Parallelism = 2

	s, err := NewServer(cfg, store, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func setupStorage(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	return store
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultJSON(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)

	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireMCPError(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code, mcpErr.Message)
}

func TestNewServer_Defaults(t *testing.T) {
	s, err := NewServer(nil, nil, nil)
	require.NoError(t, err)

	assert.NotNil(t, s.mcp)
	assert.NotNil(t, s.cfg)
	assert.NotNil(t, s.logger)
	assert.Nil(t, s.storage)
	assert.NoError(t, s.Close())
}

func TestServe_StopsOnContextCancel(t *testing.T) {
	s := setupServer(t, nil)
	in, w := io.Pipe()
	defer func() { _ = w.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.serve(ctx, in, io.Discard) }()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestBuildHasteMap(t *testing.T) {
	root := setupProject(t)
	s := setupServer(t, nil)
	ctx := context.Background()

	res, err := s.handleBuildHasteMap(ctx, callRequest("build_haste_map", map[string]interface{}{"path": root}))
	require.NoError(t, err)
	out := resultJSON(t, res)

	assert.Equal(t, root, out["root"])
	assert.Equal(t, indexer.SourceScan, out["source"])
	assert.Equal(t, float64(3), out["files_indexed"])
	assert.NotEmpty(t, out["build_id"])

	hasteMap, ok := out["haste_map"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"./a", "react"}, hasteMap[filepath.Join(root, "src", "app.js")])

	// Second build is served from the chunk cache with the same build id
	res, err = s.handleBuildHasteMap(ctx, callRequest("build_haste_map", map[string]interface{}{"path": root}))
	require.NoError(t, err)
	again := resultJSON(t, res)
	assert.Equal(t, indexer.SourceCache, again["source"])
	assert.Equal(t, out["build_id"], again["build_id"])

	res, err = s.handleBuildHasteMap(ctx, callRequest("build_haste_map", map[string]interface{}{
		"path":          root,
		"force_rebuild": true,
	}))
	require.NoError(t, err)
	forced := resultJSON(t, res)
	assert.Equal(t, indexer.SourceScan, forced["source"])
	assert.NotEqual(t, out["build_id"], forced["build_id"])
}

func TestBuildHasteMap_InvalidParams(t *testing.T) {
	s := setupServer(t, nil)
	file := filepath.Join(t.TempDir(), "file.js")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	tests := []struct {
		name string
		args interface{}
		code int
	}{
		{name: "arguments not an object", args: "nope", code: ErrorCodeInvalidParams},
		{name: "missing path", args: map[string]interface{}{}, code: ErrorCodeInvalidParams},
		{name: "relative path", args: map[string]interface{}{"path": "relative/dir"}, code: ErrorCodeInvalidParams},
		{name: "missing directory", args: map[string]interface{}{"path": filepath.Join(t.TempDir(), "gone")}, code: ErrorCodeProjectNotFound},
		{name: "file instead of directory", args: map[string]interface{}{"path": file}, code: ErrorCodeProjectNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := mcp.CallToolRequest{}
			req.Params.Arguments = tt.args
			_, err := s.handleBuildHasteMap(context.Background(), req)
			requireMCPError(t, err, tt.code)
		})
	}
}

func TestBuildHasteMap_InProgress(t *testing.T) {
	root := setupProject(t)
	s := setupServer(t, nil)

	require.True(t, s.lock.TryAcquire(root))
	_, err := s.handleBuildHasteMap(context.Background(), callRequest("build_haste_map", map[string]interface{}{"path": root}))
	requireMCPError(t, err, ErrorCodeIndexingInProgress)

	s.lock.Release(root)
	_, err = s.handleBuildHasteMap(context.Background(), callRequest("build_haste_map", map[string]interface{}{"path": root}))
	assert.NoError(t, err)
	assert.False(t, s.lock.Active(root), "lock is released after the build")
}

func TestGetDependencies(t *testing.T) {
	root := setupProject(t)
	s := setupServer(t, nil)
	ctx := context.Background()

	_, err := s.handleGetDependencies(ctx, callRequest("get_dependencies", map[string]interface{}{
		"path": root, "file": "src/app.js",
	}))
	requireMCPError(t, err, ErrorCodeNotIndexed)

	_, err = s.handleBuildHasteMap(ctx, callRequest("build_haste_map", map[string]interface{}{"path": root}))
	require.NoError(t, err)

	tests := []struct {
		name string
		file string
		want []interface{}
	}{
		{name: "relative", file: "src/app.js", want: []interface{}{"./a", "react"}},
		{name: "absolute", file: filepath.Join(root, "src", "a.js"), want: []interface{}{"lodash"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.handleGetDependencies(ctx, callRequest("get_dependencies", map[string]interface{}{
				"path": root, "file": tt.file,
			}))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resultJSON(t, res)["dependencies"])
		})
	}

	_, err = s.handleGetDependencies(ctx, callRequest("get_dependencies", map[string]interface{}{
		"path": root, "file": "src/missing.js",
	}))
	requireMCPError(t, err, ErrorCodeFileNotIndexed)

	_, err = s.handleGetDependencies(ctx, callRequest("get_dependencies", map[string]interface{}{"path": root}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestListFiles(t *testing.T) {
	root := setupProject(t)
	s := setupServer(t, nil)
	ctx := context.Background()

	_, err := s.handleListFiles(ctx, callRequest("list_files", map[string]interface{}{"path": root}))
	requireMCPError(t, err, ErrorCodeNotIndexed)

	_, err = s.handleBuildHasteMap(ctx, callRequest("build_haste_map", map[string]interface{}{"path": root}))
	require.NoError(t, err)

	res, err := s.handleListFiles(ctx, callRequest("list_files", map[string]interface{}{"path": root}))
	require.NoError(t, err)
	out := resultJSON(t, res)
	assert.Equal(t, float64(3), out["count"])
	assert.Equal(t, []interface{}{
		filepath.Join(root, "src", "a.js"),
		filepath.Join(root, "src", "app.js"),
		filepath.Join(root, "src", "view.js"),
	}, out["files"])
}

func TestFindDependents(t *testing.T) {
	root := setupProject(t)
	s := setupServer(t, nil)
	ctx := context.Background()

	_, err := s.handleBuildHasteMap(ctx, callRequest("build_haste_map", map[string]interface{}{"path": root}))
	require.NoError(t, err)

	res, err := s.handleFindDependents(ctx, callRequest("find_dependents", map[string]interface{}{
		"path": root, "specifier": "react",
	}))
	require.NoError(t, err)
	out := resultJSON(t, res)
	assert.Equal(t, float64(2), out["count"])
	assert.Equal(t, []interface{}{
		filepath.Join(root, "src", "app.js"),
		filepath.Join(root, "src", "view.js"),
	}, out["dependents"])

	res, err = s.handleFindDependents(ctx, callRequest("find_dependents", map[string]interface{}{
		"path": root, "specifier": "vue",
	}))
	require.NoError(t, err)
	assert.Equal(t, float64(0), resultJSON(t, res)["count"])

	_, err = s.handleFindDependents(ctx, callRequest("find_dependents", map[string]interface{}{"path": root}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestLookupsFallBackToStorage(t *testing.T) {
	root := setupProject(t)
	s := setupServer(t, setupStorage(t))
	ctx := context.Background()

	_, err := s.handleBuildHasteMap(ctx, callRequest("build_haste_map", map[string]interface{}{"path": root}))
	require.NoError(t, err)

	// Forget the in-memory index; answers now come from the mirror
	s.indexes.Purge()

	res, err := s.handleGetDependencies(ctx, callRequest("get_dependencies", map[string]interface{}{
		"path": root, "file": "src/app.js",
	}))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"./a", "react"}, resultJSON(t, res)["dependencies"])

	res, err = s.handleFindDependents(ctx, callRequest("find_dependents", map[string]interface{}{
		"path": root, "specifier": "lodash",
	}))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{filepath.Join(root, "src", "a.js")}, resultJSON(t, res)["dependents"])

	_, err = s.handleGetDependencies(ctx, callRequest("get_dependencies", map[string]interface{}{
		"path": root, "file": "src/missing.js",
	}))
	requireMCPError(t, err, ErrorCodeFileNotIndexed)

	res, err = s.handleListFiles(ctx, callRequest("list_files", map[string]interface{}{"path": root}))
	require.NoError(t, err)
	assert.Equal(t, float64(3), resultJSON(t, res)["count"])
}

func TestGetStatus(t *testing.T) {
	root := setupProject(t)
	s := setupServer(t, setupStorage(t))
	ctx := context.Background()

	res, err := s.handleGetStatus(ctx, callRequest("get_status", map[string]interface{}{"path": root}))
	require.NoError(t, err)
	out := resultJSON(t, res)
	assert.Equal(t, false, out["indexed"])
	assert.NotEmpty(t, out["message"])

	_, err = s.handleBuildHasteMap(ctx, callRequest("build_haste_map", map[string]interface{}{"path": root}))
	require.NoError(t, err)

	res, err = s.handleGetStatus(ctx, callRequest("get_status", map[string]interface{}{"path": root}))
	require.NoError(t, err)
	out = resultJSON(t, res)
	assert.Equal(t, true, out["indexed"])
	assert.Equal(t, false, out["building"])

	index, ok := out["index"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(3), index["files_indexed"])

	mirror, ok := out["mirror"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(3), mirror["files_count"])
	assert.Equal(t, float64(4), mirror["dependencies_count"])
	assert.Equal(t, index["build_id"], mirror["build_id"])
}

func TestProjectKey(t *testing.T) {
	a := projectKey("/a/project")
	assert.Len(t, a, 16)
	assert.Equal(t, a, projectKey("/a/project"))
	assert.NotEqual(t, a, projectKey("/b/project"))
}
