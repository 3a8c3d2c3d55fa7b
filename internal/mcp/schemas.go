package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// pathProperty is the project root argument shared by every tool
func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the JavaScript project root",
	}
}

// buildHasteMapTool returns the tool definition for build_haste_map
func buildHasteMapTool() mcp.Tool {
	return mcp.Tool{
		Name:        "build_haste_map",
		Description: "Build or load the module dependency map of a JavaScript project",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
				"force_rebuild": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, ignore the chunk cache and rescan the project",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// getDependenciesTool returns the tool definition for get_dependencies
func getDependenciesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_dependencies",
		Description: "List the module specifiers one file depends on",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
				"file": map[string]interface{}{
					"type":        "string",
					"description": "Source file, absolute or relative to the project root",
				},
			},
			Required: []string{"path", "file"},
		},
	}
}

// listFilesTool returns the tool definition for list_files
func listFilesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_files",
		Description: "List the source files in the haste map of a project",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
			},
			Required: []string{"path"},
		},
	}
}

// findDependentsTool returns the tool definition for find_dependents
func findDependentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_dependents",
		Description: "List the files that import or require a module specifier",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
				"specifier": map[string]interface{}{
					"type":        "string",
					"description": "Module specifier exactly as written in source (e.g. 'react', './utils')",
				},
			},
			Required: []string{"path", "specifier"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Query the haste map status of a project",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": pathProperty(),
			},
			Required: []string{"path"},
		},
	}
}
