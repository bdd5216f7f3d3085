package storage

import (
	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresStore struct {
	*SQLStore
}

// NewPostgresStore opens a store over the pgx database/sql driver; dsn is a
// postgres:// URL or key=value connection string.
func NewPostgresStore(dsn string) *PostgresStore {
	return &PostgresStore{SQLStore: &SQLStore{
		dialect: dialect{driver: "pgx", blobType: "BYTEA", positional: true},
		dsn:     dsn,
	}}
}
