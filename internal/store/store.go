// Package store persists run documents in a local SQLite database. Each
// run is one JSON document keyed by its run ID; updates merge top-level
// fields into the stored document inside an IMMEDIATE transaction so that
// writes to the same run are applied in call order.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/imishinist/mlvc-cli/internal/models"
)

const defaultPoolSize = 4

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	doc        TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);`

type Store struct {
	pool   *sqlitex.Pool
	logger zerolog.Logger
	path   string
}

// Open opens (creating if needed) the run database at path.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: database path is required", models.ErrConfiguration)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    defaultPoolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open run database %s: %w", path, err)
	}

	logger.Debug().Str("path", path).Msg("run store opened")
	return &Store{pool: pool, logger: logger, path: path}, nil
}

func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("failed to close run database %s: %w", s.path, err)
	}
	return nil
}

// Insert stores a new run document. Inserting an existing run ID fails.
func (s *Store) Insert(ctx context.Context, run *models.Run) error {
	doc, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", run.RunID, err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("failed to take connection: %w", err)
	}
	defer s.pool.Put(conn)

	now := time.Now().UnixNano()
	err = sqlitex.Execute(conn,
		`INSERT INTO runs (run_id, doc, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{run.RunID, string(doc), now, now}},
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.RunID, err)
	}
	return nil
}

// Get returns the stored run. Unknown fields in the document are ignored.
func (s *Store) Get(ctx context.Context, runID string) (*models.Run, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to take connection: %w", err)
	}
	defer s.pool.Put(conn)

	doc, found, err := readDocument(conn, runID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, runID)
	}
	return decodeRun(doc)
}

// Update merges fields into the top level of the stored document. Each
// value replaces the stored value for its key wholesale.
func (s *Store) Update(ctx context.Context, runID string, fields map[string]any) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("failed to take connection: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer endTransaction(&err)

	doc, found, err := readDocument(conn, runID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", models.ErrNotFound, runID)
	}

	merged, err := mergeFields(doc, fields)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", runID, err)
	}

	err = sqlitex.Execute(conn,
		`UPDATE runs SET doc = ?, updated_at = ? WHERE run_id = ?`,
		&sqlitex.ExecOptions{Args: []any{merged, time.Now().UnixNano(), runID}},
	)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", runID, err)
	}
	return nil
}

// GetAll returns every stored run in insertion order.
func (s *Store) GetAll(ctx context.Context) ([]*models.Run, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to take connection: %w", err)
	}
	defer s.pool.Put(conn)

	var runs []*models.Run
	err = sqlitex.Execute(conn, `SELECT doc FROM runs ORDER BY rowid`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			run, err := decodeRun(stmt.ColumnText(0))
			if err != nil {
				return err
			}
			runs = append(runs, run)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// RemoveAll deletes every stored run.
func (s *Store) RemoveAll(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("failed to take connection: %w", err)
	}
	defer s.pool.Put(conn)

	if err := sqlitex.ExecuteTransient(conn, `DELETE FROM runs`, nil); err != nil {
		return fmt.Errorf("failed to remove runs: %w", err)
	}
	s.logger.Debug().Int("removed", conn.Changes()).Msg("runs removed")
	return nil
}

func readDocument(conn *sqlite.Conn, runID string) (string, bool, error) {
	var (
		doc   string
		found bool
	)
	err := sqlitex.Execute(conn, `SELECT doc FROM runs WHERE run_id = ?`, &sqlitex.ExecOptions{
		Args: []any{runID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			doc = stmt.ColumnText(0)
			found = true
			return nil
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to read run %s: %w", runID, err)
	}
	return doc, found, nil
}

func mergeFields(doc string, fields map[string]any) (string, error) {
	var stored map[string]json.RawMessage
	if err := json.Unmarshal([]byte(doc), &stored); err != nil {
		return "", fmt.Errorf("failed to decode stored document: %w", err)
	}
	if stored == nil {
		stored = make(map[string]json.RawMessage, len(fields))
	}

	for key, value := range fields {
		raw, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("failed to encode field %s: %w", key, err)
		}
		stored[key] = raw
	}

	merged, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	return string(merged), nil
}

func decodeRun(doc string) (*models.Run, error) {
	var run models.Run
	if err := json.Unmarshal([]byte(doc), &run); err != nil {
		return nil, fmt.Errorf("failed to decode run document: %w", err)
	}
	return &run, nil
}
