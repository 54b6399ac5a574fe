package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

const operationTimeout = 5 * time.Second

// DB handles all database operations
type DB struct {
	conn    *sql.DB
	dialect dialect
}

// Open connects to the store named by dsn and creates the tables if needed.
// postgres:// and postgresql:// DSNs use lib/pq; anything else is a sqlite file path.
func Open(dsn string) (*DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty database DSN")
	}

	driver, source, d, err := resolveDSN(dsn)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(driver, source)
	if err != nil {
		return nil, err
	}
	if d == dialectSQLite {
		// sqlite allows a single writer; serialising through one connection avoids "database is locked"
		conn.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn, dialect: d}
	if err := db.createTables(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

func resolveDSN(dsn string) (string, string, dialect, error) {
	parsed, err := url.Parse(dsn)
	if err == nil {
		switch strings.ToLower(parsed.Scheme) {
		case "postgres", "postgresql":
			return "postgres", dsn, dialectPostgres, nil
		case "sqlite", "sqlite3", "file":
			path := parsed.Path
			if parsed.Host != "" {
				path = parsed.Host + path
			}
			if path == "" {
				return "", "", 0, fmt.Errorf("sqlite DSN %q has no path", dsn)
			}
			return "sqlite3", path, dialectSQLite, ensureDir(path)
		case "":
		default:
			return "", "", 0, fmt.Errorf("unsupported database scheme %q", parsed.Scheme)
		}
	}
	return "sqlite3", dsn, dialectSQLite, ensureDir(dsn)
}

func ensureDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// rebind rewrites ? placeholders into $n for postgres
func (db *DB) rebind(query string) string {
	if db.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
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

func (db *DB) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()
	return db.conn.ExecContext(ctx, db.rebind(query), args...)
}

// createTables creates the necessary tables if they don't exist
func (db *DB) createTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS cases (
			id TEXT PRIMARY KEY,
			source_ref TEXT NOT NULL,
			correct_answer TEXT NOT NULL,
			retired BOOLEAN NOT NULL DEFAULT FALSE,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			daily_limit INTEGER NOT NULL,
			subscriber BOOLEAN NOT NULL DEFAULT FALSE,
			cases_seen INTEGER NOT NULL DEFAULT 0,
			correct_answers INTEGER NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS daily_progress (
			user_id BIGINT NOT NULL,
			day TEXT NOT NULL,
			solved INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, day)
		)`,
		`CREATE TABLE IF NOT EXISTS responses (
			user_id BIGINT NOT NULL,
			case_id TEXT NOT NULL,
			answer TEXT NOT NULL,
			correct BOOLEAN NOT NULL,
			timestamp BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS responses_user_idx ON responses (user_id)`,
		`CREATE TABLE IF NOT EXISTS answer_counts (
			case_id TEXT NOT NULL,
			answer TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (case_id, answer)
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating tables: %w", err)
		}
	}
	return nil
}
