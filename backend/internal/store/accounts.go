package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	apperrors "circlenet/backend/pkg/errors"

	"go.uber.org/zap"
)

// Account is a login identity. Its id is shared with the graph User uid.
type Account struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	IsVerified   bool       `json:"is_verified"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

const accountColumns = `id, username, email, password_hash, first_name, last_name, is_verified, created_at, updated_at, last_login`

// CreateAccount inserts a new account
func (s *Store) CreateAccount(ctx context.Context, a *Account) error {
	err := s.conn.QueryRowContext(ctx, `
		INSERT INTO accounts (id, username, email, password_hash, first_name, last_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, a.ID, a.Username, strings.ToLower(a.Email), a.PasswordHash, a.FirstName, a.LastName).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return translate("insert account", err)
	}
	a.Email = strings.ToLower(a.Email)
	s.logger.Debug("Created account", zap.String("user_id", a.ID))
	return nil
}

// GetAccountByID returns an account by id
func (s *Store) GetAccountByID(ctx context.Context, id string) (*Account, error) {
	return s.getAccount(ctx, "id = $1", id)
}

// GetAccountByEmail returns an account by email, ignoring case
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	return s.getAccount(ctx, "lower(email) = lower($1)", email)
}

// GetAccountByIdentifier returns the account whose username or email matches
func (s *Store) GetAccountByIdentifier(ctx context.Context, identifier string) (*Account, error) {
	return s.getAccount(ctx, "lower(username) = lower($1) OR lower(email) = lower($1)", identifier)
}

func (s *Store) getAccount(ctx context.Context, where string, arg string) (*Account, error) {
	a := &Account{}
	var lastLogin sql.NullTime
	err := s.conn.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+where+` LIMIT 1`, arg).Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.FirstName, &a.LastName,
		&a.IsVerified, &a.CreatedAt, &a.UpdatedAt, &lastLogin,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("account", arg)
	}
	if err != nil {
		return nil, translate("select account", err)
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLogin = &t
	}
	return a, nil
}

// IdentityTaken reports whether the username or the email is already used
func (s *Store) IdentityTaken(ctx context.Context, username, email string) (usernameTaken, emailTaken bool, err error) {
	err = s.conn.QueryRowContext(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM accounts WHERE lower(username) = lower($1)),
			EXISTS (SELECT 1 FROM accounts WHERE lower(email) = lower($2))
	`, username, email).Scan(&usernameTaken, &emailTaken)
	if err != nil {
		return false, false, translate("check identity", err)
	}
	return usernameTaken, emailTaken, nil
}

// UpdatePasswordHash stores a new password hash
func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.execOne(ctx, "update password", `
		UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1
	`, id, hash)
}

// MarkVerified flags the account as having a verified email
func (s *Store) MarkVerified(ctx context.Context, id string) error {
	return s.execOne(ctx, "mark verified", `
		UPDATE accounts SET is_verified = TRUE, updated_at = now() WHERE id = $1
	`, id)
}

// TouchLastLogin records a successful login
func (s *Store) TouchLastLogin(ctx context.Context, id string) error {
	return s.execOne(ctx, "touch last login", `
		UPDATE accounts SET last_login = now() WHERE id = $1
	`, id)
}

// DeleteAccount removes the account row; matrix_profiles cascade
func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	return s.execOne(ctx, "delete account", `DELETE FROM accounts WHERE id = $1`, id)
}

func (s *Store) execOne(ctx context.Context, op, query string, id string, args ...interface{}) error {
	result, err := s.conn.ExecContext(ctx, query, append([]interface{}{id}, args...)...)
	if err != nil {
		return translate(op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return translate(op, err)
	}
	if n == 0 {
		return apperrors.NewNotFound("account", id)
	}
	return nil
}
