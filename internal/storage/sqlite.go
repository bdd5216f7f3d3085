//go:build sqlite

package storage

import (
	"strings"

	_ "modernc.org/sqlite"
)

const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

type SQLiteStore struct {
	*SQLStore
}

// NewSQLiteStore opens path in WAL mode with a busy timeout. The pool holds a
// single connection, so concurrent writers queue.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{SQLStore: &SQLStore{
		dialect: dialect{driver: "sqlite", blobType: "BLOB", maxOpenConns: 1},
		dsn:     sqliteDSN(path),
	}}
}

func sqliteDSN(path string) string {
	if path == "" {
		return ""
	}
	if strings.Contains(path, "?") {
		return path + "&" + sqlitePragmas
	}
	return path + "?" + sqlitePragmas
}

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}
