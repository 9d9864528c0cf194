package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrUserNotFound = errors.New("user not found")

// CachedUser is the local copy of a user owned by the user service.
type CachedUser struct {
	UserID   string
	Email    string
	Name     string
	Version  int64
	Deleted  bool
	SyncedAt time.Time
}

// UpsertUserCache applies a signup. It reports false when a row with an equal
// or newer version (live or tombstoned) already exists. Version 0 always
// applies.
func (db *DB) UpsertUserCache(ctx context.Context, userID, email, name string, version int64) (bool, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO user_cache (user_id, email, name, version, deleted, synced_at)
		VALUES ($1, $2, $3, $4, FALSE, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			version = EXCLUDED.version,
			deleted = FALSE,
			synced_at = CURRENT_TIMESTAMP
		WHERE EXCLUDED.version = 0 OR user_cache.version < EXCLUDED.version
	`, userID, email, name, version)
	if err != nil {
		return false, fmt.Errorf("upsert user cache: %w", err)
	}
	return applied(res)
}

// DeleteUserCache tombstones a user. Deleting an unknown id still writes the
// tombstone so a late signup for it is ignored.
func (db *DB) DeleteUserCache(ctx context.Context, userID string, version int64) (bool, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO user_cache (user_id, version, deleted, synced_at)
		VALUES ($1, $2, TRUE, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE SET
			email = '',
			name = '',
			version = EXCLUDED.version,
			deleted = TRUE,
			synced_at = CURRENT_TIMESTAMP
		WHERE EXCLUDED.version = 0 OR user_cache.version < EXCLUDED.version
	`, userID, version)
	if err != nil {
		return false, fmt.Errorf("delete user cache: %w", err)
	}
	return applied(res)
}

// GetCachedUser returns the row for userID, tombstones included.
func (db *DB) GetCachedUser(ctx context.Context, userID string) (*CachedUser, error) {
	u := &CachedUser{}
	err := db.QueryRowContext(ctx, `
		SELECT user_id, email, name, version, deleted, COALESCE(synced_at, NOW())
		FROM user_cache WHERE user_id = $1
	`, userID).Scan(&u.UserID, &u.Email, &u.Name, &u.Version, &u.Deleted, &u.SyncedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user cache: %w", err)
	}
	return u, nil
}

// PurgeTombstones removes tombstones older than olderThan and returns how many
// were removed.
func (db *DB) PurgeTombstones(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := db.ExecContext(ctx, `
		DELETE FROM user_cache
		WHERE deleted AND synced_at < CURRENT_TIMESTAMP - make_interval(secs => $1)
	`, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("purge tombstones: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge tombstones: %w", err)
	}
	return n, nil
}

func applied(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
