package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "circlenet/backend/pkg/errors"
	"circlenet/backend/pkg/logger"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Store is the PostgreSQL store for accounts and Matrix profiles
type Store struct {
	conn   *sql.DB
	logger *zap.Logger
}

// Open connects to PostgreSQL and verifies the connection
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, apperrors.NewStoreFailed("open", err)
	}

	conn.SetMaxOpenConns(20)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, apperrors.NewStoreFailed("ping", err)
	}

	return New(conn), nil
}

// New wraps an existing connection pool
func New(conn *sql.DB) *Store {
	return &Store{conn: conn, logger: logger.Named("store")}
}

// Close closes the connection pool
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id            UUID PRIMARY KEY,
		username      TEXT NOT NULL,
		email         TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		first_name    TEXT NOT NULL DEFAULT '',
		last_name     TEXT NOT NULL DEFAULT '',
		is_verified   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_login    TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS accounts_username_key ON accounts (lower(username))`,
	`CREATE UNIQUE INDEX IF NOT EXISTS accounts_email_key ON accounts (lower(email))`,
	`CREATE TABLE IF NOT EXISTS matrix_profiles (
		user_id        UUID PRIMARY KEY REFERENCES accounts(id) ON DELETE CASCADE,
		matrix_user_id TEXT NOT NULL UNIQUE,
		access_token   TEXT NOT NULL,
		device_id      TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the tables and indexes if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return apperrors.NewStoreFailed("migrate", err)
			}
		}
		s.logger.Info("Relational schema ensured", zap.Int("statements", len(schema)))
		return nil
	})
}

// WithTx executes fn within a transaction, rolling back when it fails
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStoreFailed("begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStoreFailed("commit", err)
	}
	return nil
}

const uniqueViolation = "23505"

// translate maps driver errors onto application error categories
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		switch pqErr.Constraint {
		case "accounts_username_key":
			return apperrors.Conflict("username is already taken")
		case "accounts_email_key":
			return apperrors.Conflict("email is already registered")
		case "matrix_profiles_matrix_user_id_key":
			return apperrors.Conflict("matrix user id is already linked")
		}
		return apperrors.Conflict("%s conflicts with an existing record", op)
	}
	return apperrors.NewStoreFailed(op, err)
}
