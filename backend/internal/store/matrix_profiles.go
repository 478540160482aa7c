package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "circlenet/backend/pkg/errors"
)

// MatrixProfile links a local account to its homeserver identity
type MatrixProfile struct {
	UserID       string    `json:"user_id"`
	MatrixUserID string    `json:"matrix_user_id"`
	AccessToken  string    `json:"-"`
	DeviceID     string    `json:"device_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// GetMatrixProfile returns the Matrix profile of a user
func (s *Store) GetMatrixProfile(ctx context.Context, userID string) (*MatrixProfile, error) {
	p := &MatrixProfile{}
	err := s.conn.QueryRowContext(ctx, `
		SELECT user_id, matrix_user_id, access_token, device_id, created_at
		FROM matrix_profiles WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.MatrixUserID, &p.AccessToken, &p.DeviceID, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("matrix profile", userID)
	}
	if err != nil {
		return nil, translate("select matrix profile", err)
	}
	return p, nil
}

// SaveMatrixProfile inserts or refreshes a user's Matrix credentials
func (s *Store) SaveMatrixProfile(ctx context.Context, p *MatrixProfile) error {
	err := s.conn.QueryRowContext(ctx, `
		INSERT INTO matrix_profiles (user_id, matrix_user_id, access_token, device_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET matrix_user_id = EXCLUDED.matrix_user_id,
		    access_token = EXCLUDED.access_token,
		    device_id = EXCLUDED.device_id
		RETURNING created_at
	`, p.UserID, p.MatrixUserID, p.AccessToken, p.DeviceID).Scan(&p.CreatedAt)
	if err != nil {
		return translate("upsert matrix profile", err)
	}
	return nil
}
