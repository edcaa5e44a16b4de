package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/ocx/gridwalk/internal/metrics"
)

// PostgresStore is an alternative Store backend: one row per key in a single
// table, the JSON-encoded record in a JSONB column. Selected by
// config.PersistenceConfig.Backend == "postgres"; the default remains
// FileStore. Grounded on the same "store full record as an opaque blob"
// contract as FileStore — spec.md §4.11 treats the persisted format as
// out of scope, so there is no schema to normalize against.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens dsn and ensures the backing table exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: ping postgres: %w", err)
	}
	const ddl = `CREATE TABLE IF NOT EXISTS gridwalk_results (
		key TEXT PRIMARY KEY,
		record JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: create table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

// SaveResults upserts the full record as a JSONB blob keyed by key.
func (p *PostgresStore) SaveResults(key string, rec ResultsRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		metrics.PersistenceOps.WithLabelValues("save_results", "error").Inc()
		return fmt.Errorf("persistence: marshal: %w", err)
	}
	const q = `INSERT INTO gridwalk_results (key, record, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET record = EXCLUDED.record, updated_at = now()`
	if _, err := p.db.Exec(q, key, data); err != nil {
		metrics.PersistenceOps.WithLabelValues("save_results", "error").Inc()
		return fmt.Errorf("persistence: upsert %q: %w", key, err)
	}
	metrics.PersistenceOps.WithLabelValues("save_results", "ok").Inc()
	return nil
}

// LoadResults fetches and decodes the record stored at key.
func (p *PostgresStore) LoadResults(key string) (ResultsRecord, error) {
	const q = `SELECT record FROM gridwalk_results WHERE key = $1`
	var raw []byte
	err := p.db.QueryRow(q, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.PersistenceOps.WithLabelValues("load_results", "error").Inc()
		return ResultsRecord{}, ErrNotFound
	}
	if err != nil {
		metrics.PersistenceOps.WithLabelValues("load_results", "error").Inc()
		return ResultsRecord{}, fmt.Errorf("persistence: query %q: %w", key, err)
	}
	var rec ResultsRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		metrics.PersistenceOps.WithLabelValues("load_results", "error").Inc()
		return ResultsRecord{}, fmt.Errorf("persistence: unmarshal %q: %w", key, err)
	}
	metrics.PersistenceOps.WithLabelValues("load_results", "ok").Inc()
	return rec, nil
}

// LoadWorld fetches only the world geometry from the record at key.
func (p *PostgresStore) LoadWorld(key string) (WorldRecord, error) {
	rec, err := p.LoadResults(key)
	if err != nil {
		return WorldRecord{}, err
	}
	return rec.World, nil
}
