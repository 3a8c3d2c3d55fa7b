package storage

import (
	"context"
	"time"

	"github.com/dshills/hastemap/pkg/types"
)

// Storage mirrors built haste maps into a database for reverse lookups
type Storage interface {
	// Project operations
	GetOrCreateProject(ctx context.Context, rootPath string) (*Project, error)
	GetProject(ctx context.Context, rootPath string) (*Project, error)
	DeleteProject(ctx context.Context, projectID int64) error

	// Index operations
	ReplaceIndex(ctx context.Context, projectID int64, buildID string, idx types.DependencyIndex) error
	ListFiles(ctx context.Context, projectID int64) ([]string, error)
	ListDependencies(ctx context.Context, projectID int64, filePath string) ([]string, error)
	FindDependents(ctx context.Context, projectID int64, specifier string) ([]string, error)

	// Status operations
	GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error)

	// Database operations
	Close() error
}

// Project represents an indexed project root
type Project struct {
	ID            int64
	RootPath      string
	BuildID       string // Build of the cache the mirror was taken from
	TotalFiles    int
	IndexVersion  string
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ProjectStatus contains statistics about a mirrored project
type ProjectStatus struct {
	Project           *Project
	FilesCount        int
	DependenciesCount int
	UniqueSpecifiers  int
	IndexSizeMB       float64
	LastIndexedAt     time.Time
	Health            HealthStatus
}

// HealthStatus represents the health of the mirror
type HealthStatus struct {
	DatabaseAccessible bool
	Indexed            bool
}
