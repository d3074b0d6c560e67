package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/db"
)

const (
	sqlSchema = `CREATE TABLE IF NOT EXISTS rbac_kv (
	kv_key   TEXT PRIMARY KEY,
	kv_value TEXT NOT NULL
)`
	sqlLoad   = `SELECT kv_value FROM rbac_kv WHERE kv_key = $1`
	sqlUpsert = `INSERT INTO rbac_kv (kv_key, kv_value) VALUES ($1, $2)
ON CONFLICT (kv_key) DO UPDATE SET kv_value = excluded.kv_value`
)

// SQL stores values in the rbac_kv table. The statements run unchanged on
// PostgreSQL and SQLite.
type SQL struct {
	db *sql.DB
}

// NewSQL wraps an open database handle.
func NewSQL(conn *sql.DB) *SQL {
	return &SQL{db: conn}
}

// EnsureSchema creates the backing table when missing.
func (s *SQL) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqlSchema); err != nil {
		return fmt.Errorf("kv/sql: ensure schema: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQL) Load(ctx context.Context, key string) (string, error) {
	var v string
	if err := s.db.QueryRowContext(ctx, sqlLoad, key).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("kv/sql: load %s: %w", key, err)
	}
	return v, nil
}

// Save implements Store inside a single transaction.
func (s *SQL) Save(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx, sqlUpsert, e.Key, e.Value); err != nil {
				return fmt.Errorf("kv/sql: upsert %s: %w", e.Key, err)
			}
		}
		return nil
	})
}
