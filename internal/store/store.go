// Package store persists extracted records in PostgreSQL. Writes are
// idempotent across runs: a record seen before only refreshes its mutable
// fields (view count and update timestamp), never its original payload.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/scraper-bots/jobnet-az/pkg/fieldparse"
	"github.com/scraper-bots/jobnet-az/pkg/logging"
	"github.com/scraper-bots/jobnet-az/pkg/scrape"
)

// tableNameRe guards against injection through configured table names,
// which are the only identifier we cannot bind as a parameter.
var tableNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ErrInvalidTableName reports a configured table name that is not a plain
// lowercase identifier.
var ErrInvalidTableName = errors.New("invalid table name")

// querier is the subset of pgxpool.Pool the store needs. pgxmock satisfies
// it too, so unit tests run without a database.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store writes records to a single table.
type Store struct {
	db     querier
	table  string
	logger zerolog.Logger
}

// New connects a pool and returns a store for the given table.
func New(ctx context.Context, dsn, table string) (*Store, *pgxpool.Pool, error) {
	if !tableNameRe.MatchString(table) {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidTableName, table)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{
		db:     pool,
		table:  table,
		logger: logging.NewLogger("store"),
	}, pool, nil
}

// NewWithQuerier builds a store over an existing connection-like value
// (used by tests with pgxmock).
func NewWithQuerier(db querier, table string) (*Store, error) {
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTableName, table)
	}
	return &Store{
		db:     db,
		table:  table,
		logger: logging.NewLogger("store"),
	}, nil
}

// EnsureSchema creates the record table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			payload    JSONB NOT NULL,
			view_count INTEGER NOT NULL DEFAULT 0,
			scraped_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`, s.table)
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Exists reports whether a record id is already stored.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, s.table)
	var exists bool
	if err := s.db.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check existence of %s: %w", id, err)
	}
	return exists, nil
}

// InsertOrUpdate stores one record. A new id inserts the full payload; a
// known id only refreshes view_count and updated_at, so re-running the
// scraper never rewrites immutable history. Returns whether a new row was
// inserted.
func (s *Store) InsertOrUpdate(ctx context.Context, id string, rec scrape.Record) (bool, error) {
	exists, err := s.Exists(ctx, id)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	viewCount := fieldparse.ParseViewCount(rec["view_count"])

	if exists {
		query := fmt.Sprintf(`UPDATE %s SET view_count = $1, updated_at = $2 WHERE id = $3`, s.table)
		if _, err := s.db.Exec(ctx, query, viewCount, now, id); err != nil {
			return false, fmt.Errorf("update %s: %w", id, err)
		}
		s.logger.Debug().Str("id", id).Int("view_count", viewCount).Msg("record refreshed")
		return false, nil
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshal payload for %s: %w", id, err)
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (id, payload, view_count, scraped_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
		s.table)
	if _, err := s.db.Exec(ctx, query, id, payload, viewCount, now); err != nil {
		return false, fmt.Errorf("insert %s: %w", id, err)
	}
	s.logger.Debug().Str("id", id).Msg("record inserted")
	return true, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)
	var n int64
	if err := s.db.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}
