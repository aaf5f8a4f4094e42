package database

import (
	"database/sql"
	"regexp"
	"strconv"
)

// Dialect covers what differs between the supported SQL backends
type Dialect interface {
	// DriverName is the name registered with database/sql
	DriverName() string

	// DSN builds the connection string, adding the options the durable
	// stores rely on
	DSN(config DialectConfig) (string, error)

	// RewriteQuery converts ? placeholders where the driver wants another form
	RewriteQuery(query string) string

	// ConfigureConnection sizes the pool
	ConfigureConnection(db *sql.DB) error

	// MigrationsSubdir names the directory under MIGRATIONS_PATH for this backend
	MigrationsSubdir() string

	CreateMigrationsTableQuery() string

	// UpsertStore returns the statement that writes a named durable store.
	// It takes the store name and its JSON payload as arguments.
	UpsertStore() string

	// IsRetryable reports whether err is a lock or serialization conflict
	// that may succeed when the statement is run again
	IsRetryable(err error) bool
}

// DialectConfig holds configuration for database connection
type DialectConfig struct {
	// Path is the SQLite database file
	Path string

	// URL is the PostgreSQL or MySQL connection string
	URL string
}

// applicationName identifies this service's connections on the server
const applicationName = "langclash"

var placeholderRegexp = regexp.MustCompile(`\?`)

// rewritePlaceholdersToNumbered converts ? placeholders to $1, $2, etc.
func rewritePlaceholdersToNumbered(query string) string {
	counter := 0
	return placeholderRegexp.ReplaceAllStringFunc(query, func(string) string {
		counter++
		return "$" + strconv.Itoa(counter)
	})
}
