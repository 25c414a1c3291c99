// Package store implements the optional SQLite-backed persistence layer:
// the address-value cache's hydration-state snapshot and a passive
// GA/device sighting log fed by gacache.Recorder.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/knxnetip/gacache"
)

const (
	dirPermissions  = 0750
	filePermissions = 0600
	msPerSecond     = 1000
	connectTimeout  = 5 * time.Second
	connMaxIdleTime = 30 * time.Minute
)

// Config configures a Store, mirroring the teacher's database.Config.
type Config struct {
	Path        string
	BusyTimeout int
}

// Store wraps a sql.DB connection and implements gacache.Persister, so it
// can be registered directly with a gacache.Recorder via SetPersister,
// grounded on internal/infrastructure/database/database.go and the upsert
// statements in internal/bridges/knx/busmonitor.go.
type Store struct {
	db   *sql.DB
	path string

	deviceUpsertStmt *sql.Stmt
	gaUpsertStmt     *sql.Stmt
}

// Open creates (if needed) and opens the SQLite database at cfg.Path,
// creates the schema if absent, and prepares the upsert statements used by
// RecordDevice/RecordGroupAddress.
func Open(cfg Config) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("store: creating database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL",
		cfg.Path, cfg.BusyTimeout*msPerSecond)

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("store: verifying database connection: %w", err)
	}
	_ = os.Chmod(cfg.Path, filePermissions)

	if err := createSchema(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	s := &Store{db: sqlDB, path: cfg.Path}
	if err := s.prepareStatements(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS knx_devices (
	individual_address TEXT PRIMARY KEY,
	last_seen           DATETIME NOT NULL,
	message_count       INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS knx_group_addresses (
	group_address     TEXT PRIMARY KEY,
	last_seen         DATETIME NOT NULL,
	message_count     INTEGER NOT NULL DEFAULT 0,
	has_read_response INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS knx_cache_state (
	group_address TEXT PRIMARY KEY,
	value_json    TEXT NOT NULL,
	last_update   INTEGER NOT NULL
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: creating schema: %w", err)
	}
	return nil
}

func (s *Store) prepareStatements() error {
	var err error
	s.deviceUpsertStmt, err = s.db.Prepare(`
		INSERT INTO knx_devices (individual_address, last_seen, message_count)
		VALUES (?, ?, 1)
		ON CONFLICT(individual_address) DO UPDATE SET
			last_seen = excluded.last_seen,
			message_count = message_count + 1
	`)
	if err != nil {
		return fmt.Errorf("store: preparing device upsert: %w", err)
	}

	s.gaUpsertStmt, err = s.db.Prepare(`
		INSERT INTO knx_group_addresses (group_address, last_seen, message_count, has_read_response)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(group_address) DO UPDATE SET
			last_seen = excluded.last_seen,
			message_count = message_count + 1,
			has_read_response = MAX(has_read_response, excluded.has_read_response)
	`)
	if err != nil {
		s.deviceUpsertStmt.Close()
		return fmt.Errorf("store: preparing group address upsert: %w", err)
	}
	return nil
}

// RecordDevice implements gacache.Persister.
func (s *Store) RecordDevice(addr string, seen time.Time) error {
	if _, err := s.deviceUpsertStmt.Exec(addr, seen); err != nil {
		return fmt.Errorf("store: recording device: %w", err)
	}
	return nil
}

// RecordGroupAddress implements gacache.Persister.
func (s *Store) RecordGroupAddress(addr string, seen time.Time, isResponse bool) error {
	respFlag := 0
	if isResponse {
		respFlag = 1
	}
	if _, err := s.gaUpsertStmt.Exec(addr, seen, respFlag); err != nil {
		return fmt.Errorf("store: recording group address: %w", err)
	}
	return nil
}

// SaveHydrationState persists a cache's ToHydrationState() snapshot, one
// row per known group address. Value is stored JSON-encoded since
// gacache.HydrationRecord.Value is an untyped decoded datapoint value.
func (s *Store) SaveHydrationState(ctx context.Context, records []gacache.HydrationRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO knx_cache_state (group_address, value_json, last_update)
		VALUES (?, ?, ?)
		ON CONFLICT(group_address) DO UPDATE SET
			value_json = excluded.value_json,
			last_update = excluded.last_update
	`)
	if err != nil {
		return fmt.Errorf("store: preparing cache-state upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		valueJSON, err := json.Marshal(rec.Value)
		if err != nil {
			return fmt.Errorf("store: encoding value for %s: %w", rec.GA, err)
		}
		if _, err := stmt.ExecContext(ctx, rec.GA, string(valueJSON), rec.UnixSeconds); err != nil {
			return fmt.Errorf("store: writing cache state for %s: %w", rec.GA, err)
		}
	}
	return tx.Commit()
}

// LoadHydrationState reads back every persisted cache-state row, ready to
// pass to gacache.Cache.HydrateStatic at startup.
func (s *Store) LoadHydrationState(ctx context.Context) ([]gacache.HydrationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT group_address, value_json, last_update FROM knx_cache_state`)
	if err != nil {
		return nil, fmt.Errorf("store: loading cache state: %w", err)
	}
	defer rows.Close()

	var out []gacache.HydrationRecord
	for rows.Next() {
		var gaStr, valueJSON string
		var unixSeconds int64
		if err := rows.Scan(&gaStr, &valueJSON, &unixSeconds); err != nil {
			return nil, fmt.Errorf("store: scanning cache state row: %w", err)
		}
		var value any
		if err := json.Unmarshal([]byte(valueJSON), &value); err != nil {
			continue
		}
		out = append(out, gacache.HydrationRecord{
			GA:          gaStr,
			Value:       value,
			UnixSeconds: unixSeconds,
		})
	}
	return out, rows.Err()
}

// Close releases prepared statements and the underlying connection.
func (s *Store) Close() error {
	if s.deviceUpsertStmt != nil {
		s.deviceUpsertStmt.Close()
	}
	if s.gaUpsertStmt != nil {
		s.gaUpsertStmt.Close()
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: closing database: %w", err)
	}
	return nil
}

// HealthCheck verifies the database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	var result int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("store: health check failed: %w", err)
	}
	return nil
}
