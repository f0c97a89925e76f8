package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/ghostwrite/internal/config"
	_ "modernc.org/sqlite"
)

// Schema versions. Bump when adding migrations.
const (
	LocalSchemaVersion  = 1
	LedgerSchemaVersion = 2
)

// migration upgrades a database from version-1 to version.
type migration struct {
	version int
	sql     string
}

var localMigrations = []migration{
	{1, `
	CREATE TABLE IF NOT EXISTS settings (
	  key        TEXT PRIMARY KEY,
	  value      TEXT NOT NULL,
	  updated_at INTEGER NOT NULL
	);
	`},
}

var ledgerMigrations = []migration{
	{1, `
	CREATE TABLE IF NOT EXISTS users (
	  id                TEXT PRIMARY KEY,
	  email             TEXT NOT NULL,
	  api_key           TEXT NOT NULL,
	  tier              TEXT NOT NULL,
	  credits_remaining INTEGER NOT NULL CHECK (credits_remaining >= 0),
	  created_at        INTEGER NOT NULL,
	  updated_at        INTEGER NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_api_key ON users(api_key);

	CREATE TABLE IF NOT EXISTS usage_logs (
	  id           TEXT PRIMARY KEY,
	  user_id      TEXT NOT NULL REFERENCES users(id),
	  action       TEXT NOT NULL,
	  text_length  INTEGER NOT NULL,
	  credits_used INTEGER NOT NULL,
	  created_at   INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_usage_logs_user_created
	ON usage_logs(user_id, created_at DESC);
	`},
	// Migration 2: idempotent charges. A replayed request_id returns the stored result.
	{2, `
	ALTER TABLE usage_logs ADD COLUMN provider TEXT;
	ALTER TABLE usage_logs ADD COLUMN request_id TEXT;
	ALTER TABLE usage_logs ADD COLUMN result TEXT;

	CREATE UNIQUE INDEX IF NOT EXISTS idx_usage_logs_request_id
	ON usage_logs(user_id, request_id)
	WHERE request_id IS NOT NULL;
	`},
}

// Init initializes the client-side SQLite database at baseDir/ghostwrite.db.
// It holds durable extension state such as the saved API key.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.ghostwrite.
func Init(baseDir string) (*sql.DB, error) {
	return open(baseDir, "ghostwrite.db", "", localMigrations)
}

// InitLedger initializes the credit ledger database at baseDir/ledger.db.
// Transactions begin IMMEDIATE so a charge takes the write lock up front and
// waits on busy_timeout instead of failing when it upgrades from a read.
func InitLedger(baseDir string) (*sql.DB, error) {
	return open(baseDir, "ledger.db", "&_txlock=immediate", ledgerMigrations)
}

func open(baseDir, file, extraParams string, migrations []migration) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, file)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)" + extraParams
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db, migrations); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
		db.SetMaxIdleConns(cfg.DBMaxOpenConns)
	}
}

// migrate applies every migration newer than user_version, in order.
func migrate(db *sql.DB, migrations []migration) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if version >= m.version {
			continue
		}
		if _, err := db.Exec(m.sql); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		if err := SetUserVersion(db, m.version); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
