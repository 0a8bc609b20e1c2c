package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/iliyamo/auth-template-service/internal/cache"
	"github.com/iliyamo/auth-template-service/internal/database"
	"github.com/iliyamo/auth-template-service/internal/model"
)

const userColumns = "id, username, password_hash, role, created_at, updated_at"

// UserRepo stores users in MySQL. Reads go through the cache-aside accessor
// keyed by id and by username; writes hit MySQL directly and then drop both
// cache keys of the affected user.
type UserRepo struct {
	db    *sql.DB
	aside *cache.Aside
	ttl   time.Duration
	log   *slog.Logger
}

// NewUserRepo wires the repository. ttl is the lifetime of cached users.
func NewUserRepo(db *sql.DB, aside *cache.Aside, ttl time.Duration, log *slog.Logger) *UserRepo {
	if log == nil {
		log = slog.Default()
	}
	return &UserRepo{db: db, aside: aside, ttl: ttl, log: log}
}

// UserIDKey is the cache key of a user looked up by id.
func UserIDKey(id uint64) string { return "user:id:" + strconv.FormatUint(id, 10) }

// UsernameKey is the cache key of a user looked up by username.
func UsernameKey(username string) string { return "user:username:" + username }

// GetByID returns the user with the given id or ErrNotFound.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return cache.GetCachedOrCall(ctx, r.aside, UserIDKey(id), r.ttl, func(ctx context.Context) (model.User, error) {
		return r.scanOne(ctx, r.db, "SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1", id)
	}, cache.JSON[model.User])
}

// GetByUsername returns the user with exactly the given username or
// ErrNotFound. A row matched only through a case or accent insensitive
// collation is treated as absent: it would be cached under a key that
// invalidate never drops.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	return cache.GetCachedOrCall(ctx, r.aside, UsernameKey(username), r.ttl, func(ctx context.Context) (model.User, error) {
		u, err := r.scanOne(ctx, r.db, "SELECT "+userColumns+" FROM users WHERE username = ? LIMIT 1", username)
		if err != nil {
			return model.User{}, err
		}
		if u.Username != username {
			return model.User{}, ErrNotFound
		}
		return u, nil
	}, cache.JSON[model.User])
}

// Create inserts a user and returns the stored row. A taken username yields
// ErrAlreadyExists.
func (r *UserRepo) Create(ctx context.Context, nu model.NewUser) (model.User, error) {
	var u model.User
	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx database.DBTX) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)",
			nu.Username, nu.PasswordHash, string(nu.Role))
		if err != nil {
			if isDuplicate(err) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("insert user: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		u, err = r.scanOne(ctx, tx, "SELECT "+userColumns+" FROM users WHERE id = ?", uint64(id))
		return err
	})
	if err != nil {
		return model.User{}, err
	}
	// Nothing should be cached for a new user yet; deleting is idempotent and
	// clears anything left behind by a previous user with the same keys.
	if err := r.invalidate(ctx, u); err != nil {
		return u, err
	}
	return u, nil
}

// UpdatePasswordHash replaces the stored hash and returns the updated user.
// Both cache entries are dropped afterwards so the old hash is never served.
func (r *UserRepo) UpdatePasswordHash(ctx context.Context, id uint64, hash string) (model.User, error) {
	var u model.User
	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx database.DBTX) error {
		res, err := tx.ExecContext(ctx, "UPDATE users SET password_hash = ? WHERE id = ?", hash, id)
		if err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		u, err = r.scanOne(ctx, tx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
		return err
	})
	if err != nil {
		return model.User{}, err
	}
	if err := r.invalidate(ctx, u); err != nil {
		return u, err
	}
	return u, nil
}

// invalidate drops both lookup keys of u. Unlike cache reads, a failure here
// is returned: the row has changed and a surviving entry would be stale.
func (r *UserRepo) invalidate(ctx context.Context, u model.User) error {
	if err := r.aside.Cache().Delete(ctx, UserIDKey(u.ID), UsernameKey(u.Username)); err != nil {
		r.log.ErrorContext(ctx, "user cache invalidation failed", "user_id", u.ID, "err", err)
		return fmt.Errorf("invalidate user cache: %w", err)
	}
	return nil
}

func (r *UserRepo) scanOne(ctx context.Context, q database.DBTX, query string, arg any) (model.User, error) {
	var (
		u    model.User
		role string
	)
	err := q.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("select user: %w", err)
	}
	u.Role = model.Role(role)
	return u, nil
}
