package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"eddisonso.com/edd-blog/internal/posts/db"
)

type postRequest struct {
	Title   string `json:"title" validate:"required,max=200"`
	Content string `json:"content" validate:"required,max=50000"`
}

type authorResponse struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}

type postResponse struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Author    authorResponse `json:"author"`
	Views     int64          `json:"views"`
	Likes     int64          `json:"likes"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func toPostResponse(p *db.Post) postResponse {
	return postResponse{
		ID:      p.ID,
		Title:   p.Title,
		Content: p.Content,
		Author: authorResponse{
			UserID: p.UserID,
			Name:   p.AuthorName,
			Email:  p.AuthorEmail,
		},
		Views:     p.Views,
		Likes:     p.Likes,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type listFunc func(ctx context.Context, limit, offset int) ([]*db.Post, error)

func (h *Handler) servePage(w http.ResponseWriter, r *http.Request, op string, list listFunc) {
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	posts, err := list(r.Context(), limit, offset)
	if err != nil {
		storeError(w, err, op)
		return
	}

	resp := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		resp = append(resp, toPostResponse(p))
	}
	writeJSON(w, resp)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	h.servePage(w, r, "list", h.store.ListPosts)
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	h.servePage(w, r, "latest", h.store.ListLatestPosts)
}

func (h *Handler) handleByCreator(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	h.servePage(w, r, "by creator", func(ctx context.Context, limit, offset int) ([]*db.Post, error) {
		return h.store.ListPostsByCreator(ctx, userID, limit, offset)
	})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, "q is required", http.StatusBadRequest)
		return
	}
	h.servePage(w, r, "search", func(ctx context.Context, limit, offset int) ([]*db.Post, error) {
		return h.store.SearchPosts(ctx, q, limit, offset)
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	post, err := h.store.GetPost(r.Context(), r.PathValue("id"))
	if err != nil {
		storeError(w, err, "get")
		return
	}
	writeJSON(w, toPostResponse(post))
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	views, err := h.store.IncrementViews(r.Context(), r.PathValue("id"))
	if err != nil {
		storeError(w, err, "view")
		return
	}
	writeJSON(w, map[string]int64{"views": views})
}

func (h *Handler) readPost(w http.ResponseWriter, r *http.Request) (postRequest, bool) {
	var req postRequest
	if !decodeJSON(w, r, &req) {
		return req, false
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readPost(w, r)
	if !ok {
		return
	}
	claims := claimsFrom(r)

	// A token outlives its account; only authors present in the user
	// cache may post.
	author, err := h.store.GetCachedUser(r.Context(), claims.UserID)
	if errors.Is(err, db.ErrUserNotFound) || (err == nil && author.Deleted) {
		writeError(w, "author account not found", http.StatusForbidden)
		return
	}
	if err != nil {
		storeError(w, err, "author lookup")
		return
	}

	post, err := h.store.CreatePost(r.Context(), claims.UserID, req.Title, req.Content)
	if err != nil {
		storeError(w, err, "create")
		return
	}

	slog.Info("post created", "post_id", post.ID, "user_id", claims.UserID)
	writeJSONStatus(w, toPostResponse(post), http.StatusCreated)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readPost(w, r)
	if !ok {
		return
	}

	post, err := h.store.UpdatePost(r.Context(), r.PathValue("id"), claimsFrom(r).UserID, req.Title, req.Content)
	if err != nil {
		storeError(w, err, "update")
		return
	}
	writeJSON(w, toPostResponse(post))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	userID := claimsFrom(r).UserID
	if err := h.store.DeletePost(r.Context(), id, userID); err != nil {
		storeError(w, err, "delete")
		return
	}

	slog.Info("post deleted", "post_id", id, "user_id", userID)
	writeJSON(w, map[string]string{"status": "deleted"})
}

func (h *Handler) handleLike(w http.ResponseWriter, r *http.Request) {
	likes, err := h.store.LikePost(r.Context(), r.PathValue("id"), claimsFrom(r).UserID)
	if err != nil {
		storeError(w, err, "like")
		return
	}
	writeJSON(w, map[string]int64{"likes": likes})
}
