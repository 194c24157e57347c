package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"uk.co.dudmesh.roastlive/internal/model"
)

func (s *Store) PasswordHash(ctx context.Context, userID model.UserID) (string, error) {
	var hash string
	err := s.db.GetContext(ctx, &hash, "select password_hash from credentials where user_id = ?", userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", model.ErrorNotFound
		}
		return "", fmt.Errorf("fetching credentials: %w", err)
	}
	return hash, nil
}

// ClaimPassword stores hash for a user that has none yet. It reports false
// when the user already has a password.
func (s *Store) ClaimPassword(ctx context.Context, userID model.UserID, hash string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"insert or ignore into credentials (user_id, password_hash, created_at) values(?, ?, ?)",
		userID, hash, s.timestamp())
	if err != nil {
		return false, fmt.Errorf("inserting credentials: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return rows == 1, nil
}
