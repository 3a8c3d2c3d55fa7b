// Package storage mirrors haste maps into SQLite for reverse lookups.
//
// The chunk cache answers "what does this file depend on" only by loading
// the whole index. The mirror keeps the same data in indexed tables so that
// single-file and reverse ("who requires this") queries stay cheap.
//
// # Database Schema
//
// Tables:
//   - projects: one row per project root, with the build id it mirrors
//   - files: absolute paths of indexed files
//   - dependencies: specifiers per file, with their extraction position
//   - schema_version: applied migrations (semver)
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("hastemap.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	project, err := db.GetOrCreateProject(ctx, root)
//	err = db.ReplaceIndex(ctx, project.ID, manifest.BuildID, index)
//
//	dependents, err := db.FindDependents(ctx, project.ID, "react")
//
// ReplaceIndex swaps the whole mirror of a project in one transaction, so
// readers never observe a half-written index.
//
// # Drivers
//
// The default build uses modernc.org/sqlite (pure Go). Building with the
// cgo_sqlite tag switches to github.com/mattn/go-sqlite3.
package storage
