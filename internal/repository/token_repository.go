package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/auth-template-service/internal/database"
	"github.com/iliyamo/auth-template-service/internal/model"
)

// TokenRepo persists the single active refresh token of each user.
type TokenRepo struct{ db *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{db: db} }

// Upsert makes token the user's refresh token. It updates the existing row
// by user_id and inserts only when no row matched, all in one transaction.
// If a concurrent login inserts first, the unique key on user_id rejects our
// insert and the update is retried, so the last writer's token wins.
func (r *TokenRepo) Upsert(ctx context.Context, userID uint64, token string, expiresAt time.Time) (model.RefreshToken, error) {
	var rt model.RefreshToken
	expiresAt = expiresAt.UTC()
	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx database.DBTX) error {
		n, err := updateRefresh(ctx, tx, userID, token, expiresAt)
		if err != nil {
			return err
		}
		if n == 0 {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO refresh_tokens (user_id, token, expires_at) VALUES (?, ?, ?)",
				userID, token, expiresAt)
			switch {
			case isDuplicate(err):
				if _, err := updateRefresh(ctx, tx, userID, token, expiresAt); err != nil {
					return err
				}
			case err != nil:
				return fmt.Errorf("insert refresh token: %w", err)
			}
		}
		var found bool
		rt, found, err = getRefresh(ctx, tx, userID)
		if err == nil && !found {
			err = ErrNotFound
		}
		return err
	})
	if err != nil {
		return model.RefreshToken{}, err
	}
	return rt, nil
}

// GetByUserID returns the user's refresh token. found is false when the user
// has never logged in; that is not an error.
func (r *TokenRepo) GetByUserID(ctx context.Context, userID uint64) (model.RefreshToken, bool, error) {
	return getRefresh(ctx, r.db, userID)
}

func updateRefresh(ctx context.Context, q database.DBTX, userID uint64, token string, expiresAt time.Time) (int64, error) {
	res, err := q.ExecContext(ctx,
		"UPDATE refresh_tokens SET token = ?, expires_at = ? WHERE user_id = ?",
		token, expiresAt, userID)
	if err != nil {
		return 0, fmt.Errorf("update refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update refresh token: %w", err)
	}
	return n, nil
}

func getRefresh(ctx context.Context, q database.DBTX, userID uint64) (model.RefreshToken, bool, error) {
	var rt model.RefreshToken
	err := q.QueryRowContext(ctx,
		"SELECT id, user_id, token, expires_at, created_at FROM refresh_tokens WHERE user_id = ? LIMIT 1",
		userID).Scan(&rt.ID, &rt.UserID, &rt.Token, &rt.ExpiresAt, &rt.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RefreshToken{}, false, nil
	}
	if err != nil {
		return model.RefreshToken{}, false, fmt.Errorf("select refresh token: %w", err)
	}
	return rt, true, nil
}
