package storage

import (
	"regexp"
	"strings"
	"testing"
)

// bareKey matches the unqualified identifier "key", which is a reserved
// word in MySQL and must never appear in generated SQL.
var bareKey = regexp.MustCompile(`(^|[^_\w])key([^_\w]|$)`)

func TestSQLKVQueries(t *testing.T) {
	dialects := map[string]SQLDialect{
		"postgresql": DialectPostgreSQL,
		"mysql":      DialectMySQL,
		"sqlite":     DialectSQLite,
	}

	for name, dialect := range dialects {
		t.Run(name, func(t *testing.T) {
			kv := NewSQLKV(nil, WithSQLDialect(dialect))

			for _, query := range []string{kv.getQuery(), kv.setQuery(), kv.deleteQuery()} {
				if bareKey.MatchString(query) {
					t.Errorf("query uses reserved identifier key: %s", query)
				}
				if !strings.Contains(query, "kv_key") {
					t.Errorf("query missing kv_key column: %s", query)
				}
				if !strings.Contains(query, "shopfront_kv") {
					t.Errorf("query missing default table name: %s", query)
				}
			}
		})
	}
}

func TestSQLKVPlaceholders(t *testing.T) {
	pg := NewSQLKV(nil)
	if !strings.Contains(pg.getQuery(), "$1") {
		t.Errorf("postgresql get query should use numbered placeholders: %s", pg.getQuery())
	}

	my := NewSQLKV(nil, WithSQLDialect(DialectMySQL))
	if strings.Contains(my.getQuery(), "$1") {
		t.Errorf("mysql get query should use ? placeholders: %s", my.getQuery())
	}
	if !strings.Contains(my.setQuery(), "ON DUPLICATE KEY UPDATE") {
		t.Errorf("mysql set query should upsert: %s", my.setQuery())
	}

	lite := NewSQLKV(nil, WithSQLDialect(DialectSQLite))
	if !strings.Contains(lite.setQuery(), "INSERT OR REPLACE") {
		t.Errorf("sqlite set query should use INSERT OR REPLACE: %s", lite.setQuery())
	}
}

func TestSQLKVCustomTableName(t *testing.T) {
	kv := NewSQLKV(nil, WithSQLTableName("browser_state"))
	if !strings.Contains(kv.getQuery(), "browser_state") {
		t.Errorf("custom table name not used: %s", kv.getQuery())
	}
}
