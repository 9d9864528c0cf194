package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrNameTaken    = errors.New("name already taken")
)

// pq unique_violation
const uniqueViolation = "23505"

type User struct {
	UserID       string
	Email        string
	Name         string
	PasswordHash string
	Version      int64
	CreatedAt    time.Time
}

// CreateUser inserts a new user and returns it with its assigned version.
func (db *DB) CreateUser(ctx context.Context, email, name, passwordHash string) (*User, error) {
	u := &User{
		UserID:       uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
	}

	err := db.QueryRowContext(ctx, `
		INSERT INTO users (user_id, email, name, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING version, created_at
	`, u.UserID, email, name, passwordHash).Scan(&u.Version, &u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			switch pqErr.Constraint {
			case "users_email_key":
				return nil, ErrEmailTaken
			case "users_name_key":
				return nil, ErrNameTaken
			}
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (db *DB) GetUserByID(ctx context.Context, userID string) (*User, error) {
	return db.getUser(ctx, `WHERE user_id = $1`, userID)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return db.getUser(ctx, `WHERE email = $1`, email)
}

func (db *DB) getUser(ctx context.Context, where string, arg string) (*User, error) {
	u := &User{}
	err := db.QueryRowContext(ctx, `
		SELECT user_id, email, name, password_hash, version, COALESCE(created_at, NOW())
		FROM users `+where, arg).Scan(&u.UserID, &u.Email, &u.Name, &u.PasswordHash, &u.Version, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

func (db *DB) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

func (db *DB) NameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check name: %w", err)
	}
	return exists, nil
}

// DeleteUser removes a user and returns the version stamped on the deletion.
func (db *DB) DeleteUser(ctx context.Context, userID string) (int64, error) {
	var version int64
	err := db.QueryRowContext(ctx, `
		DELETE FROM users WHERE user_id = $1
		RETURNING nextval('user_versions')
	`, userID).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("delete user: %w", err)
	}
	return version, nil
}

func (db *DB) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT user_id, email, name, version, COALESCE(created_at, NOW())
		FROM users ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u := &User{}
		if err := rows.Scan(&u.UserID, &u.Email, &u.Name, &u.Version, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
