package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/hastemap/internal/indexer"
	"github.com/dshills/hastemap/internal/storage"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeProjectNotFound    = -32001 // Specified path is not a project directory
	ErrorCodeIndexingInProgress = -32002 // Another build of the same root is running
	ErrorCodeNotIndexed         = -32003 // Project not indexed
	ErrorCodeFileNotIndexed     = -32004 // File is not part of the index
)

// handleBuildHasteMap handles the build_haste_map tool invocation
func (s *Server) handleBuildHasteMap(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, root, err := projectArgs(request)
	if err != nil {
		return nil, err
	}
	force := getBoolDefault(args, "force_rebuild", false)

	if !s.lock.TryAcquire(root) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "a build of this project is already running", map[string]interface{}{
			"path": root,
		})
	}
	defer s.lock.Release(root)

	built, err := s.build(ctx, root, force)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "build failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"root":          root,
		"source":        built.stats.Source,
		"files_indexed": built.stats.FilesIndexed,
		"files_skipped": built.stats.FilesSkipped,
		"chunks":        built.stats.ChunksProcessed,
		"build_id":      built.buildID,
		"duration_ms":   built.stats.Duration.Milliseconds(),
		"haste_map":     built.index.ToMap(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetDependencies handles the get_dependencies tool invocation
func (s *Server) handleGetDependencies(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, root, err := projectArgs(request)
	if err != nil {
		return nil, err
	}

	file, ok := args["file"].(string)
	if !ok || file == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "file parameter is required", map[string]interface{}{
			"param":  "file",
			"reason": "missing or empty",
		})
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(root, filepath.FromSlash(file))
	}

	var deps []string
	if built, ok := s.indexes.Get(root); ok {
		rec, found := built.index.Lookup(file)
		if !found {
			return nil, fileNotIndexed(file)
		}
		deps = rec.Dependencies
	} else {
		project, err := s.mirroredProject(ctx, root)
		if err != nil {
			return nil, err
		}
		deps, err = s.storage.ListDependencies(ctx, project.ID, file)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fileNotIndexed(file)
		}
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to list dependencies", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	response := map[string]interface{}{
		"file":         file,
		"dependencies": deps,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListFiles handles the list_files tool invocation
func (s *Server) handleListFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, root, err := projectArgs(request)
	if err != nil {
		return nil, err
	}

	var files []string
	if built, ok := s.indexes.Get(root); ok {
		files = built.index.Sorted().Paths()
	} else {
		project, err := s.mirroredProject(ctx, root)
		if err != nil {
			return nil, err
		}
		files, err = s.storage.ListFiles(ctx, project.ID)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to list files", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	response := map[string]interface{}{
		"path":  root,
		"files": files,
		"count": len(files),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleFindDependents handles the find_dependents tool invocation
func (s *Server) handleFindDependents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, root, err := projectArgs(request)
	if err != nil {
		return nil, err
	}

	specifier, ok := args["specifier"].(string)
	if !ok || specifier == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "specifier parameter is required", map[string]interface{}{
			"param":  "specifier",
			"reason": "missing or empty",
		})
	}

	var dependents []string
	if built, ok := s.indexes.Get(root); ok {
		dependents = make([]string, 0)
		for _, rec := range built.index {
			if slices.Contains(rec.Dependencies, specifier) {
				dependents = append(dependents, rec.Path)
			}
		}
		slices.Sort(dependents)
	} else {
		project, err := s.mirroredProject(ctx, root)
		if err != nil {
			return nil, err
		}
		dependents, err = s.storage.FindDependents(ctx, project.ID, specifier)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to find dependents", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	response := map[string]interface{}{
		"specifier":  specifier,
		"dependents": dependents,
		"count":      len(dependents),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, root, err := projectArgs(request)
	if err != nil {
		return nil, err
	}

	response := map[string]interface{}{
		"path":     root,
		"indexed":  false,
		"building": s.lock.Active(root),
	}

	if built, ok := s.indexes.Get(root); ok {
		response["indexed"] = true
		response["index"] = map[string]interface{}{
			"source":        built.stats.Source,
			"files_indexed": built.stats.FilesIndexed,
			"files_skipped": built.stats.FilesSkipped,
			"build_id":      built.buildID,
			"built_at":      built.builtAt.Format(time.RFC3339),
		}
	}

	if s.storage != nil {
		mirror, err := s.mirrorStatus(ctx, root)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
				"error": err.Error(),
			})
		}
		if mirror != nil {
			response["indexed"] = true
			response["mirror"] = mirror
		}
	}

	if response["indexed"] == false {
		response["message"] = "Project not indexed. Use build_haste_map tool to index this project."
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// mirrorStatus returns the storage statistics of root, or nil when the
// project has never been mirrored
func (s *Server) mirrorStatus(ctx context.Context, root string) (map[string]interface{}, error) {
	project, err := s.storage.GetProject(ctx, root)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	status, err := s.storage.GetStatus(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"build_id":           project.BuildID,
		"last_indexed_at":    status.LastIndexedAt.Format(time.RFC3339),
		"files_count":        status.FilesCount,
		"dependencies_count": status.DependenciesCount,
		"unique_specifiers":  status.UniqueSpecifiers,
		"index_size_mb":      fmt.Sprintf("%.2f", status.IndexSizeMB),
		"database_ok":        status.Health.DatabaseAccessible,
	}, nil
}

// mirroredProject returns the stored project for root, or a not-indexed
// error when neither memory nor storage holds it
func (s *Server) mirroredProject(ctx context.Context, root string) (*storage.Project, error) {
	notIndexed := newMCPError(ErrorCodeNotIndexed, "project not indexed", map[string]interface{}{
		"path": root,
		"hint": "call build_haste_map first",
	})
	if s.storage == nil {
		return nil, notIndexed
	}

	project, err := s.storage.GetProject(ctx, root)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notIndexed
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get project", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return project, nil
}

// Helper functions

// projectArgs extracts the arguments and the resolved project root
func projectArgs(request mcp.CallToolRequest) (map[string]interface{}, string, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, "", newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, "", newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validatePath(path); err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrPathNotFound) || errors.Is(err, ErrNotDirectory) {
			code = ErrorCodeProjectNotFound
		}
		return nil, "", newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	root, err := indexer.ResolveRoot(path)
	if err != nil {
		return nil, "", newMCPError(ErrorCodeProjectNotFound, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}
	return args, root, nil
}

func fileNotIndexed(file string) error {
	return newMCPError(ErrorCodeFileNotIndexed, "file is not in the haste map", map[string]interface{}{
		"file": file,
	})
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks if a path exists and is accessible
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
