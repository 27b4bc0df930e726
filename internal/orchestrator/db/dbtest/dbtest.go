// Package dbtest opens throwaway sqlite repositories for package tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"agent-orchestration-service/internal/orchestrator/db"
	gormdb "agent-orchestration-service/pkg/db"
)

// NewRepository returns a migrated repository backed by a sqlite file in t.TempDir().
func NewRepository(t testing.TB) *db.Repository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agents_test.db")
	gormDB, err := gormdb.NewGormDB(gormdb.Options{Type: "sqlite", DSN: path, LogLevel: "silent"})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = gormdb.Close(gormDB) })

	repo := db.NewRepository(gormDB)
	if err := repo.Migrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return repo
}
