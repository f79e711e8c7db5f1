package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLKV is a SQL-backed storage backend.
// It works with any database/sql compatible driver (PostgreSQL, MySQL,
// SQLite). Requires a table with schema:
//
//	CREATE TABLE shopfront_kv (
//	    client_id VARCHAR(64) NOT NULL,
//	    kv_key VARCHAR(64) NOT NULL,
//	    data BYTEA NOT NULL,
//	    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
//	    PRIMARY KEY (client_id, kv_key)
//	);
//
// The key column is kv_key, not key: KEY is a reserved word in MySQL.
//
// For PostgreSQL the schema can be installed with Migrate.
//
// SQLKV does not implement Watcher: the database has no change feed, so
// cross-context storage events need the memory or Redis backend.
type SQLKV struct {
	db        *sql.DB
	tableName string
	dialect   SQLDialect
	closed    bool
}

// SQLDialect represents the SQL dialect for query generation.
type SQLDialect int

const (
	// DialectPostgreSQL uses PostgreSQL syntax ($1, $2 placeholders).
	DialectPostgreSQL SQLDialect = iota
	// DialectMySQL uses MySQL syntax (? placeholders).
	DialectMySQL
	// DialectSQLite uses SQLite syntax (? placeholders).
	DialectSQLite
)

// SQLKVOption configures SQLKV behavior.
type SQLKVOption func(*sqlKVConfig)

type sqlKVConfig struct {
	tableName string
	dialect   SQLDialect
}

// WithSQLTableName sets the table name. Default: "shopfront_kv".
func WithSQLTableName(name string) SQLKVOption {
	return func(c *sqlKVConfig) {
		if name != "" {
			c.tableName = name
		}
	}
}

// WithSQLDialect sets the SQL dialect for query generation.
// Default: DialectPostgreSQL.
func WithSQLDialect(dialect SQLDialect) SQLKVOption {
	return func(c *sqlKVConfig) {
		c.dialect = dialect
	}
}

// NewSQLKV creates a new SQL-backed storage backend.
func NewSQLKV(db *sql.DB, opts ...SQLKVOption) *SQLKV {
	cfg := &sqlKVConfig{
		tableName: "shopfront_kv",
		dialect:   DialectPostgreSQL,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &SQLKV{
		db:        db,
		tableName: cfg.tableName,
		dialect:   cfg.dialect,
	}
}

// Get retrieves the value for a client's key.
func (s *SQLKV) Get(ctx context.Context, clientID, key string) ([]byte, error) {
	if s.closed {
		return nil, ErrClosed{}
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, s.getQuery(), clientID, key).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Set upserts the value for a client's key.
func (s *SQLKV) Set(ctx context.Context, clientID, key string, data []byte, origin string) error {
	if s.closed {
		return ErrClosed{}
	}

	_, err := s.db.ExecContext(ctx, s.setQuery(), clientID, key, data)
	return err
}

// Delete removes a client's key.
func (s *SQLKV) Delete(ctx context.Context, clientID, key, origin string) error {
	if s.closed {
		return ErrClosed{}
	}

	_, err := s.db.ExecContext(ctx, s.deleteQuery(), clientID, key)
	return err
}

// Close marks the backend closed. The *sql.DB is owned by the caller and
// is not closed.
func (s *SQLKV) Close() error {
	s.closed = true
	return nil
}

func (s *SQLKV) getQuery() string {
	return fmt.Sprintf(`SELECT data FROM %s WHERE client_id = %s AND kv_key = %s`,
		s.tableName, s.placeholder(1), s.placeholder(2))
}

func (s *SQLKV) setQuery() string {
	switch s.dialect {
	case DialectMySQL:
		return fmt.Sprintf(`
			INSERT INTO %s (client_id, kv_key, data, updated_at)
			VALUES (?, ?, ?, NOW())
			ON DUPLICATE KEY UPDATE
				data = VALUES(data),
				updated_at = NOW()
		`, s.tableName)
	case DialectSQLite:
		return fmt.Sprintf(`
			INSERT OR REPLACE INTO %s (client_id, kv_key, data, updated_at)
			VALUES (?, ?, ?, datetime('now'))
		`, s.tableName)
	default:
		return fmt.Sprintf(`
			INSERT INTO %s (client_id, kv_key, data, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (client_id, kv_key) DO UPDATE SET
				data = EXCLUDED.data,
				updated_at = NOW()
		`, s.tableName)
	}
}

func (s *SQLKV) deleteQuery() string {
	return fmt.Sprintf(`DELETE FROM %s WHERE client_id = %s AND kv_key = %s`,
		s.tableName, s.placeholder(1), s.placeholder(2))
}

// placeholder returns the placeholder syntax for the dialect.
func (s *SQLKV) placeholder(n int) string {
	switch s.dialect {
	case DialectPostgreSQL:
		return fmt.Sprintf("$%d", n)
	default:
		return "?"
	}
}
