package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPostNotFound = errors.New("post not found")
	ErrForbidden    = errors.New("not the post owner")
)

// Post is a post joined with its author's cached identity. AuthorName and
// AuthorEmail are empty when the author is unknown or deleted.
type Post struct {
	ID          string
	UserID      string
	Title       string
	Content     string
	Views       int64
	Likes       int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	AuthorName  string
	AuthorEmail string
}

const selectPosts = `
	SELECT p.id, p.user_id, p.title, p.content, p.views, p.likes,
		COALESCE(p.created_at, NOW()), COALESCE(p.updated_at, NOW()),
		COALESCE(u.name, ''), COALESCE(u.email, '')
	FROM posts p
	LEFT JOIN user_cache u ON u.user_id = p.user_id AND NOT u.deleted
`

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(s scanner) (*Post, error) {
	p := &Post{}
	err := s.Scan(&p.ID, &p.UserID, &p.Title, &p.Content, &p.Views, &p.Likes,
		&p.CreatedAt, &p.UpdatedAt, &p.AuthorName, &p.AuthorEmail)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (db *DB) queryPosts(ctx context.Context, query string, args ...any) ([]*Post, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := []*Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// ListPosts returns every post, oldest first.
func (db *DB) ListPosts(ctx context.Context, limit, offset int) ([]*Post, error) {
	return db.queryPosts(ctx, selectPosts+`
		ORDER BY p.created_at ASC, p.id
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

// ListLatestPosts returns every post, newest first.
func (db *DB) ListLatestPosts(ctx context.Context, limit, offset int) ([]*Post, error) {
	return db.queryPosts(ctx, selectPosts+`
		ORDER BY p.created_at DESC, p.id
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

func (db *DB) ListPostsByCreator(ctx context.Context, userID string, limit, offset int) ([]*Post, error) {
	return db.queryPosts(ctx, selectPosts+`
		WHERE p.user_id = $1
		ORDER BY p.created_at DESC, p.id
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
}

// SearchPosts matches q case-insensitively against title, content and author
// name.
func (db *DB) SearchPosts(ctx context.Context, q string, limit, offset int) ([]*Post, error) {
	pattern := "%" + escapeLike(q) + "%"
	return db.queryPosts(ctx, selectPosts+`
		WHERE p.title ILIKE $1 OR p.content ILIKE $1 OR u.name ILIKE $1
		ORDER BY p.created_at DESC, p.id
		LIMIT $2 OFFSET $3
	`, pattern, limit, offset)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (db *DB) GetPost(ctx context.Context, id string) (*Post, error) {
	p, err := scanPost(db.QueryRowContext(ctx, selectPosts+`WHERE p.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query post: %w", err)
	}
	return p, nil
}

// IncrementViews bumps the view counter and returns the new count.
func (db *DB) IncrementViews(ctx context.Context, id string) (int64, error) {
	var views int64
	err := db.QueryRowContext(ctx, `
		UPDATE posts SET views = views + 1 WHERE id = $1 RETURNING views
	`, id).Scan(&views)
	if err == sql.ErrNoRows {
		return 0, ErrPostNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment views: %w", err)
	}
	return views, nil
}

func (db *DB) CreatePost(ctx context.Context, userID, title, content string) (*Post, error) {
	id := uuid.NewString()
	_, err := db.ExecContext(ctx, `
		INSERT INTO posts (id, user_id, title, content)
		VALUES ($1, $2, $3, $4)
	`, id, userID, title, content)
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return db.GetPost(ctx, id)
}

// UpdatePost rewrites a post owned by userID.
func (db *DB) UpdatePost(ctx context.Context, id, userID, title, content string) (*Post, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE posts SET title = $3, content = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND user_id = $2
	`, id, userID, title, content)
	if err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}
	if ok, err := applied(res); err != nil {
		return nil, err
	} else if !ok {
		return nil, db.missOrForbidden(ctx, id)
	}
	return db.GetPost(ctx, id)
}

// DeletePost removes a post owned by userID. Its likes go with it.
func (db *DB) DeletePost(ctx context.Context, id, userID string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if ok, err := applied(res); err != nil {
		return err
	} else if !ok {
		return db.missOrForbidden(ctx, id)
	}
	return nil
}

// missOrForbidden explains why an owner-scoped write matched no rows.
func (db *DB) missOrForbidden(ctx context.Context, id string) error {
	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check post: %w", err)
	}
	if exists {
		return ErrForbidden
	}
	return ErrPostNotFound
}

// LikePost records userID's like and returns the post's like count. Liking
// twice counts once.
func (db *DB) LikePost(ctx context.Context, id, userID string) (int64, error) {
	var likes int64
	err := db.QueryRowContext(ctx, `
		WITH liked AS (
			INSERT INTO post_likes (post_id, user_id)
			SELECT id, $2 FROM posts WHERE id = $1
			ON CONFLICT (post_id, user_id) DO NOTHING
			RETURNING post_id
		)
		UPDATE posts SET likes = likes + (SELECT COUNT(*) FROM liked)
		WHERE id = $1
		RETURNING likes
	`, id, userID).Scan(&likes)
	if err == sql.ErrNoRows {
		return 0, ErrPostNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("like post: %w", err)
	}
	return likes, nil
}
