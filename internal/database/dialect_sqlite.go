package database

import (
	"database/sql"
	"errors"
	"net/url"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// SQLiteDialect stores everything in one local file. It is the default
// backend for the telemetry queue.
type SQLiteDialect struct{}

func NewSQLiteDialect() *SQLiteDialect {
	return &SQLiteDialect{}
}

func (d *SQLiteDialect) DriverName() string {
	return "sqlite3"
}

// DSN appends the driver options for WAL journaling, a busy timeout and
// immediate write locks. Options already present in Path win.
func (d *SQLiteDialect) DSN(config DialectConfig) (string, error) {
	if config.Path == "" {
		return "", errors.New("sqlite: database path is empty")
	}
	path, rawQuery, _ := strings.Cut(config.Path, "?")
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", err
	}
	defaults := map[string]string{
		"_busy_timeout": "5000",
		"_journal_mode": "WAL",
		"_txlock":       "immediate",
	}
	for key, value := range defaults {
		if params.Get(key) == "" {
			params.Set(key, value)
		}
	}
	return path + "?" + params.Encode(), nil
}

func (d *SQLiteDialect) RewriteQuery(query string) string {
	return query
}

func (d *SQLiteDialect) ConfigureConnection(db *sql.DB) error {
	// one writer; stores are rewritten whole on every save
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return nil
}

func (d *SQLiteDialect) MigrationsSubdir() string {
	return "sqlite"
}

func (d *SQLiteDialect) CreateMigrationsTableQuery() string {
	return `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT UNIQUE NOT NULL,
			executed_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`
}

func (d *SQLiteDialect) UpsertStore() string {
	return `INSERT INTO durable_stores (name, payload, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = CURRENT_TIMESTAMP`
}

func (d *SQLiteDialect) IsRetryable(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}
