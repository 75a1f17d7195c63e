// Package sqlite implements the term, translation and rule repositories on an
// embedded SQLite file for field devices without a database server. The
// driver is synchronous, so every call runs on a workpool goroutine and the
// caller only waits on it.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	sq "github.com/Masterminds/squirrel"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/heartmarshall/lingualearn/internal/domain"
	"github.com/heartmarshall/lingualearn/internal/workpool"
)

// querier is implemented by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is an SQLite database whose calls run on a worker pool.
type DB struct {
	sql  *sql.DB
	pool *workpool.Pool
}

// DSN returns the data source name for path: WAL journal, a busy timeout so
// concurrent writers wait instead of failing, immediate write transactions
// and SQLite-native timestamp text.
func DSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")
	q.Set("_time_format", "sqlite")
	return path + "?" + q.Encode()
}

// Open opens (creating if needed) the database file at path and verifies the
// connection. Queries run on pool.
func Open(ctx context.Context, path string, pool *workpool.Pool) (*DB, error) {
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// Writers still serialize on the immediate lock; this bounds readers.
	db.SetMaxOpenConns(max(pool.Size(), 1))
	db.SetMaxIdleConns(max(pool.Size(), 1))
	db.SetConnMaxLifetime(time.Hour)

	err = pool.Do(ctx, func(ctx context.Context) error {
		return db.PingContext(ctx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	return &DB{sql: db, pool: pool}, nil
}

// SQL returns the underlying handle, for migrations.
func (d *DB) SQL() *sql.DB { return d.sql }

// Close closes the database.
func (d *DB) Close() error { return d.sql.Close() }

// do runs fn on the worker pool against the database.
func (d *DB) do(ctx context.Context, fn func(ctx context.Context, q querier) error) error {
	return d.pool.Do(ctx, func(ctx context.Context) error {
		return fn(ctx, d.sql)
	})
}

// inTx runs fn on the worker pool inside a write transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (d *DB) inTx(ctx context.Context, fn func(ctx context.Context, q querier) error) error {
	return d.pool.Do(ctx, func(ctx context.Context) error {
		tx, err := d.sql.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		defer func() {
			if r := recover(); r != nil {
				_ = tx.Rollback()
				panic(r)
			}
		}()

		if err := fn(ctx, tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("rollback failed: %w (original error: %v)", rbErr, err)
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

// builder returns a squirrel statement builder with SQLite placeholders.
func builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// mapError converts database/sql and SQLite errors to domain errors.
// context.DeadlineExceeded and context.Canceled pass through.
func mapError(err error, entity, key string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %s: %w", entity, key, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", entity, key, domain.ErrNotFound)
	}

	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s %s: %w", entity, key, domain.ErrAlreadyExists)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%s %s: %w", entity, key, domain.ErrNotFound)
		case sqlite3.SQLITE_CONSTRAINT_CHECK, sqlite3.SQLITE_CONSTRAINT_NOTNULL:
			return fmt.Errorf("%s %s: %w", entity, key, domain.ErrValidation)
		}
	}

	return fmt.Errorf("%s %s: %w", entity, key, err)
}
