package localdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Manager controls the single sqlite DB instance backing the core's
// persisted state (datasources, views, sync configs/jobs, conflicts,
// settings, jobs, audit).
type Manager struct {
	path string
	DB   *DB
}

// OpenManager opens or creates the sqlite DB under stateDir with retry/backoff
// semantics, since the data dir may be on a volume still mounting at boot.
func OpenManager(ctx context.Context, stateDir string) (*Manager, error) {
	if stateDir == "" {
		stateDir = "."
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, err
	}
	var (
		db  *DB
		err error
	)
	for i := 0; i < 5; i++ {
		db, err = Open(stateDir)
		if err == nil {
			break
		}
		if errors.Is(err, sql.ErrConnDone) {
			// unlikely for sqlite; treat as retryable
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(200*(i+1)) * time.Millisecond):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return &Manager{path: filepath.Join(stateDir, "pagebase.sqlite"), DB: db}, nil
}

// Close releases the underlying sqlite handle.
func (m *Manager) Close() error {
	if m == nil || m.DB == nil {
		return nil
	}
	return m.DB.Close()
}

// Path returns the database file path.
func (m *Manager) Path() string { return m.path }
