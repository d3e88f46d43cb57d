// Package globalconfig is a small persistent key-value store shared by every
// project on the machine. Values are JSON documents kept in a SQLite file.
package globalconfig

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/experius/pwa-buildpack/internal/logging"
)

// Supported database/sql driver names.
const (
	DriverCGO    = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

// DefaultDBPath returns ~/.config/pwa-buildpack.db.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".config", "pwa-buildpack.db"), nil
}

// DB is a handle to the store file. The file is opened on first use, so
// creating a DB never touches disk.
type DB struct {
	path   string
	driver string

	mu sync.Mutex
	db *sql.DB
}

// NewDB returns a handle for the database at path. An empty driver selects
// DriverCGO.
func NewDB(path, driver string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: database path is required", ErrInvalidOptions)
	}
	switch driver {
	case "":
		driver = DriverCGO
	case DriverCGO, DriverPureGo:
	default:
		return nil, fmt.Errorf("%w: unknown sqlite driver %q (want %q or %q)", ErrInvalidOptions, driver, DriverCGO, DriverPureGo)
	}
	return &DB{path: path, driver: driver}, nil
}

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// Driver returns the database/sql driver name in use.
func (d *DB) Driver() string { return d.driver }

// conn opens the database and its schema on first call.
func (d *DB) conn(ctx context.Context) (*sql.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db != nil {
		return d.db, nil
	}

	if err := os.MkdirAll(filepath.Dir(d.path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	dsn := d.path
	if d.driver == DriverCGO {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps the pure Go driver's pragmas in effect.
	db.SetMaxOpenConns(1)

	if err := initSchema(ctx, db, d.driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.StoreDebug("opened %s with driver %s", d.path, d.driver)
	d.db = db
	return db, nil
}

func initSchema(ctx context.Context, db *sql.DB, driver string) error {
	if driver == DriverPureGo {
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			return err
		}
	}
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Close releases the connection. It is safe to call on a handle that was
// never used, and more than once.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}
