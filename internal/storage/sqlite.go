package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/hastemap/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from single writer; also keeps ":memory:" on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens dbPath and applies pending migrations
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Project operations

const projectColumns = `id, root_path, build_id, total_files, index_version, last_indexed_at, created_at, updated_at`

func scanProject(row *sql.Row) (*Project, error) {
	var project Project
	var lastIndexedAt sql.NullTime
	err := row.Scan(
		&project.ID, &project.RootPath, &project.BuildID, &project.TotalFiles,
		&project.IndexVersion, &lastIndexedAt, &project.CreatedAt, &project.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastIndexedAt.Valid {
		project.LastIndexedAt = lastIndexedAt.Time
	}
	return &project, nil
}

// GetProject returns the project registered for rootPath
func (s *SQLiteStorage) GetProject(ctx context.Context, rootPath string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE root_path = ?`, rootPath)
	return scanProject(row)
}

func (s *SQLiteStorage) getProjectByID(ctx context.Context, q querier, projectID int64) (*Project, error) {
	row := q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, projectID)
	return scanProject(row)
}

// GetOrCreateProject returns the project for rootPath, registering it first
// if needed
func (s *SQLiteStorage) GetOrCreateProject(ctx context.Context, rootPath string) (*Project, error) {
	if rootPath == "" {
		return nil, types.ErrEmptyPath
	}

	project, err := s.GetProject(ctx, rootPath)
	if err == nil {
		return project, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (root_path, index_version, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, rootPath, CurrentSchemaVersion, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &Project{
		ID:           id,
		RootPath:     rootPath,
		IndexVersion: CurrentSchemaVersion,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// DeleteProject removes a project and everything mirrored for it
func (s *SQLiteStorage) DeleteProject(ctx context.Context, projectID int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", projectID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Index operations

// ReplaceIndex substitutes the mirrored files and dependencies of a project
// with idx in a single transaction
func (s *SQLiteStorage) ReplaceIndex(ctx context.Context, projectID int64, buildID string, idx types.DependencyIndex) error {
	if err := idx.Validate(); err != nil {
		return fmt.Errorf("invalid index: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := s.getProjectByID(ctx, tx, projectID); err != nil {
		return err
	}

	// Dependencies go with their files via ON DELETE CASCADE
	if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE project_id = ?", projectID); err != nil {
		return fmt.Errorf("failed to clear files: %w", err)
	}

	fileStmt, err := tx.PrepareContext(ctx, "INSERT INTO files (project_id, file_path) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare file insert: %w", err)
	}
	defer func() { _ = fileStmt.Close() }()

	depStmt, err := tx.PrepareContext(ctx, "INSERT INTO dependencies (file_id, specifier, position) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare dependency insert: %w", err)
	}
	defer func() { _ = depStmt.Close() }()

	for _, rec := range idx {
		result, err := fileStmt.ExecContext(ctx, projectID, rec.Path)
		if err != nil {
			return fmt.Errorf("failed to insert file %s: %w", rec.Path, err)
		}
		fileID, err := result.LastInsertId()
		if err != nil {
			return err
		}
		for pos, dep := range rec.Dependencies {
			if _, err := depStmt.ExecContext(ctx, fileID, dep, pos); err != nil {
				return fmt.Errorf("failed to insert dependency %s of %s: %w", dep, rec.Path, err)
			}
		}
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		UPDATE projects
		SET build_id = ?, total_files = ?, last_indexed_at = ?, updated_at = ?
		WHERE id = ?
	`, buildID, idx.Len(), now, now, projectID)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index: %w", err)
	}
	return nil
}

// ListFiles returns the mirrored file paths of a project in order
func (s *SQLiteStorage) ListFiles(ctx context.Context, projectID int64) ([]string, error) {
	return queryStrings(ctx, s.db, `
		SELECT file_path FROM files WHERE project_id = ? ORDER BY file_path
	`, projectID)
}

// ListDependencies returns the specifiers of one file in extraction order
func (s *SQLiteStorage) ListDependencies(ctx context.Context, projectID int64, filePath string) ([]string, error) {
	var fileID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM files WHERE project_id = ? AND file_path = ?", projectID, filePath,
	).Scan(&fileID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	return queryStrings(ctx, s.db, `
		SELECT specifier FROM dependencies WHERE file_id = ? ORDER BY position
	`, fileID)
}

// FindDependents returns the files of a project that reference specifier
func (s *SQLiteStorage) FindDependents(ctx context.Context, projectID int64, specifier string) ([]string, error) {
	return queryStrings(ctx, s.db, `
		SELECT f.file_path
		FROM dependencies d
		JOIN files f ON d.file_id = f.id
		WHERE f.project_id = ? AND d.specifier = ?
		ORDER BY f.file_path
	`, projectID, specifier)
}

// queryStrings runs a single-column query and collects the results
func queryStrings(ctx context.Context, q querier, query string, args ...interface{}) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Status operations

// GetStatus reports counts and health for a mirrored project
func (s *SQLiteStorage) GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error) {
	project, err := s.getProjectByID(ctx, s.db, projectID)
	if err != nil {
		return nil, err
	}

	status := &ProjectStatus{
		Project:       project,
		LastIndexedAt: project.LastIndexedAt,
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files WHERE project_id = ?", projectID).Scan(&status.FilesCount)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT d.specifier) FROM dependencies d
		JOIN files f ON d.file_id = f.id
		WHERE f.project_id = ?
	`, projectID).Scan(&status.DependenciesCount, &status.UniqueSpecifiers)
	if err != nil {
		return nil, err
	}

	// Calculate database size
	var pageCount, pageSize int
	err = s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible: true,
		Indexed:            !project.LastIndexedAt.IsZero(),
	}

	return status, nil
}
