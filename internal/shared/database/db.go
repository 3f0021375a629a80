package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidAPIKey is returned for unknown or revoked API keys
	ErrInvalidAPIKey = errors.New("invalid API key")
)

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

// DB is the relational store behind the gateway. The same queries run on
// Postgres (production) and embedded SQLite (local runs and tests).
type DB struct {
	conn    *sql.DB
	dialect dialect
}

// New creates a new Postgres connection
func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return open(conn, dialectPostgres)
}

// NewSQLite opens (or creates) an embedded SQLite database file
func NewSQLite(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// SQLite allows one writer; a single connection serializes statements
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	return open(conn, dialectSQLite)
}

func open(conn *sql.DB, d dialect) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return &DB{conn: conn, dialect: d}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection, for health checks
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Migrate creates the tables the gateway owns
func (db *DB) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if db.dialect == dialectSQLite {
		schema = sqliteSchema
	}
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// q rewrites ? placeholders to $n for Postgres
func (db *DB) q(query string) string {
	if db.dialect != dialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// dbTime scans timestamps stored either natively or as text
type dbTime struct {
	Time time.Time
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	}
	return fmt.Errorf("cannot scan %T into timestamp", src)
}

func (t *dbTime) parse(s string) error {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05", time.DateOnly} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("cannot parse timestamp %q", s)
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	user_id    TEXT PRIMARY KEY,
	plan       TEXT NOT NULL DEFAULT '',
	signup_at  TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS api_keys (
	id           TEXT PRIMARY KEY,
	key_hash     TEXT NOT NULL UNIQUE,
	key_prefix   TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	user_id      TEXT NOT NULL REFERENCES accounts(user_id),
	is_active    BOOLEAN NOT NULL DEFAULT TRUE,
	last_used_at TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS usage_periods (
	user_id              TEXT NOT NULL,
	period_start         DATE NOT NULL,
	searches             BIGINT NOT NULL DEFAULT 0,
	exports              BIGINT NOT NULL DEFAULT 0,
	prompt_input_tokens  BIGINT NOT NULL DEFAULT 0,
	prompt_output_tokens BIGINT NOT NULL DEFAULT 0,
	prompt_dollars       NUMERIC(14, 6) NOT NULL DEFAULT 0,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, period_start)
);

CREATE TABLE IF NOT EXISTS companies (
	ruc           TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	trade_name    TEXT NOT NULL DEFAULT '',
	sector        TEXT NOT NULL DEFAULT '',
	department    TEXT NOT NULL DEFAULT '',
	province      TEXT NOT NULL DEFAULT '',
	district      TEXT NOT NULL DEFAULT '',
	size          TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT '',
	employees     INTEGER NOT NULL DEFAULT 0,
	website       TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	year_founded  INTEGER NOT NULL DEFAULT 0,
	revenue       TEXT NOT NULL DEFAULT '',
	legal_address TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_companies_sector ON companies(sector);
CREATE INDEX IF NOT EXISTS idx_companies_location ON companies(department, province, district);

CREATE TABLE IF NOT EXISTS user_profiles (
	user_id        TEXT PRIMARY KEY,
	full_name      TEXT NOT NULL DEFAULT '',
	company_name   TEXT NOT NULL DEFAULT '',
	company_ruc    TEXT NOT NULL DEFAULT '',
	role           TEXT NOT NULL DEFAULT '',
	offerings      TEXT NOT NULL DEFAULT '[]',
	target_sectors TEXT NOT NULL DEFAULT '[]',
	target_regions TEXT NOT NULL DEFAULT '[]'
);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	user_id    TEXT PRIMARY KEY,
	plan       TEXT NOT NULL DEFAULT '',
	signup_at  TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS api_keys (
	id           TEXT PRIMARY KEY,
	key_hash     TEXT NOT NULL UNIQUE,
	key_prefix   TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	user_id      TEXT NOT NULL REFERENCES accounts(user_id),
	is_active    INTEGER NOT NULL DEFAULT 1,
	last_used_at TEXT,
	created_at   TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS usage_periods (
	user_id              TEXT NOT NULL,
	period_start         TEXT NOT NULL,
	searches             INTEGER NOT NULL DEFAULT 0,
	exports              INTEGER NOT NULL DEFAULT 0,
	prompt_input_tokens  INTEGER NOT NULL DEFAULT 0,
	prompt_output_tokens INTEGER NOT NULL DEFAULT 0,
	prompt_dollars       REAL NOT NULL DEFAULT 0,
	updated_at           TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, period_start)
);

CREATE TABLE IF NOT EXISTS companies (
	ruc           TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	trade_name    TEXT NOT NULL DEFAULT '',
	sector        TEXT NOT NULL DEFAULT '',
	department    TEXT NOT NULL DEFAULT '',
	province      TEXT NOT NULL DEFAULT '',
	district      TEXT NOT NULL DEFAULT '',
	size          TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT '',
	employees     INTEGER NOT NULL DEFAULT 0,
	website       TEXT NOT NULL DEFAULT '',
	phone         TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	year_founded  INTEGER NOT NULL DEFAULT 0,
	revenue       TEXT NOT NULL DEFAULT '',
	legal_address TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_companies_sector ON companies(sector);
CREATE INDEX IF NOT EXISTS idx_companies_location ON companies(department, province, district);

CREATE TABLE IF NOT EXISTS user_profiles (
	user_id        TEXT PRIMARY KEY,
	full_name      TEXT NOT NULL DEFAULT '',
	company_name   TEXT NOT NULL DEFAULT '',
	company_ruc    TEXT NOT NULL DEFAULT '',
	role           TEXT NOT NULL DEFAULT '',
	offerings      TEXT NOT NULL DEFAULT '[]',
	target_sectors TEXT NOT NULL DEFAULT '[]',
	target_regions TEXT NOT NULL DEFAULT '[]'
);
`
