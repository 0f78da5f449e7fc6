package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"speaktoheaven/services"
)

const (
	pqUniqueViolation   = "23505"
	pqInvalidTextFormat = "22P02"
)

// Store is the Postgres implementation of every repository the services use.
type Store struct {
	conn *sql.DB
}

var (
	_ services.MessageStore  = (*Store)(nil)
	_ services.AccountStore  = (*Store)(nil)
	_ services.TakeoverStore = (*Store)(nil)
)

func NewStore(conn *sql.DB) *Store {
	return &Store{conn: conn}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pqCode(err) == pqUniqueViolation
}

func isInvalidID(err error) bool {
	return pqCode(err) == pqInvalidTextFormat
}

// notFound folds "no row" and malformed uuid lookups into services.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) || isInvalidID(err) {
		return services.ErrNotFound
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
