// Package db provides the optional storage layer: connection helpers, schema
// migration, the stored bot OAuth token and the timer event journal.
//
// Postgres (via pgx) and SQLite (via modernc.org/sqlite) are both supported.
// Queries are written with '?' placeholders and rebound for Postgres.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
	_ "modernc.org/sqlite"             // sqlite driver registered as 'sqlite'

	"github.com/onnwee/chat-timer/crypto"
)

// Dialect selects SQL flavour.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// ErrUnsupportedDSN is returned by Open for DSNs that name no known driver.
var ErrUnsupportedDSN = errors.New("unsupported DB_DSN: expected postgres://, sqlite: or file:")

// Store wraps a *sql.DB with its dialect and optional token sealer.
type Store struct {
	DB      *sql.DB
	Dialect Dialect
	sealer  *crypto.Sealer
}

// ParseDSN maps DB_DSN to a driver name and driver-specific DSN.
func ParseDSN(dsn string) (driver, source string, d Dialect, err error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn, Postgres, nil
	case strings.HasPrefix(dsn, "sqlite:"):
		return "sqlite", strings.TrimPrefix(dsn, "sqlite:"), SQLite, nil
	case strings.HasPrefix(dsn, "file:"):
		return "sqlite", dsn, SQLite, nil
	}
	return "", "", 0, ErrUnsupportedDSN
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver, source, dialect, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// an in-memory database exists per connection
		sqlDB.SetMaxOpenConns(1)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	return &Store{DB: sqlDB, Dialect: dialect}, nil
}

// WithSealer enables encryption of stored tokens. A nil sealer stores plaintext.
func (s *Store) WithSealer(sealer *crypto.Sealer) *Store {
	s.sealer = sealer
	return s
}

// Close closes the underlying pool.
func (s *Store) Close() error { return s.DB.Close() }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

// rebind converts '?' placeholders to '$N' for Postgres.
func (s *Store) rebind(q string) string {
	if s.Dialect != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// Migrate applies idempotent schema changes. The DDL is shared by both dialects.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS oauth_tokens (
			provider TEXT PRIMARY KEY,
			access_token TEXT NOT NULL DEFAULT '',
			refresh_token TEXT NOT NULL DEFAULT '',
			expires_at_unix BIGINT NOT NULL DEFAULT 0,
			scope TEXT NOT NULL DEFAULT '',
			encryption_version INTEGER NOT NULL DEFAULT 0,
			encryption_key_id TEXT NOT NULL DEFAULT '',
			updated_at_unix BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS timer_events (
			timer_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			owner TEXT NOT NULL,
			channel TEXT NOT NULL,
			remaining_seconds BIGINT NOT NULL DEFAULT 0,
			at_unix_ms BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_timer_events_at ON timer_events(at_unix_ms)`,
		`CREATE INDEX IF NOT EXISTS idx_timer_events_owner ON timer_events(owner, at_unix_ms)`,
	}
	for i, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("%s migrate step %d failed: %w", s.Dialect, i, err)
		}
	}
	return nil
}
