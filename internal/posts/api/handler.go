package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"eddisonso.com/edd-blog/internal/auth"
	"eddisonso.com/edd-blog/internal/posts/db"
	"eddisonso.com/edd-blog/internal/validation"
)

const (
	defaultLimit = 20
	maxLimit     = 100
	maxBodyBytes = 1 << 20
)

// PostStore is the post service's storage.
type PostStore interface {
	ListPosts(ctx context.Context, limit, offset int) ([]*db.Post, error)
	ListLatestPosts(ctx context.Context, limit, offset int) ([]*db.Post, error)
	ListPostsByCreator(ctx context.Context, userID string, limit, offset int) ([]*db.Post, error)
	SearchPosts(ctx context.Context, q string, limit, offset int) ([]*db.Post, error)
	GetPost(ctx context.Context, id string) (*db.Post, error)
	IncrementViews(ctx context.Context, id string) (int64, error)
	CreatePost(ctx context.Context, userID, title, content string) (*db.Post, error)
	UpdatePost(ctx context.Context, id, userID, title, content string) (*db.Post, error)
	DeletePost(ctx context.Context, id, userID string) error
	LikePost(ctx context.Context, id, userID string) (int64, error)
	GetCachedUser(ctx context.Context, userID string) (*db.CachedUser, error)
}

type Handler struct {
	store     PostStore
	validate  *validation.Validator
	jwtSecret []byte
}

type Config struct {
	Store     PostStore
	JWTSecret []byte
}

func NewHandler(cfg Config) *Handler {
	return &Handler{
		store:     cfg.Store,
		validate:  validation.New(),
		jwtSecret: cfg.JWTSecret,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/posts", h.handleList)
	mux.HandleFunc("GET /api/posts/latest", h.handleLatest)
	mux.HandleFunc("GET /api/posts/creator/{userID}", h.handleByCreator)
	mux.HandleFunc("GET /api/posts/search", h.handleSearch)
	mux.HandleFunc("GET /api/posts/{id}", h.handleGet)
	mux.HandleFunc("POST /api/posts/{id}/views", h.handleView)

	// Authenticated writes
	mux.HandleFunc("POST /api/posts", h.requireAuth(h.handleCreate))
	mux.HandleFunc("PUT /api/posts/{id}", h.requireAuth(h.handleUpdate))
	mux.HandleFunc("DELETE /api/posts/{id}", h.requireAuth(h.handleDelete))
	mux.HandleFunc("POST /api/posts/{id}/like", h.requireAuth(h.handleLike))

	mux.HandleFunc("GET /healthz", h.handleHealthz)
}

type ctxKey struct{}

func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := auth.FromRequest(h.jwtSecret, r)
		if err != nil {
			writeError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
	}
}

func claimsFrom(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(ctxKey{}).(*auth.Claims)
	return claims
}

var errBadPage = errors.New("limit and offset must be non-negative integers")

// page reads limit and offset. limit defaults to 20 and is capped at 100.
func page(r *http.Request) (limit, offset int, err error) {
	limit = defaultLimit
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 {
			return 0, 0, errBadPage
		}
		limit = min(limit, maxLimit)
	}
	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, errBadPage
		}
	}
	return limit, offset, nil
}

// storeError maps store errors onto HTTP responses.
func storeError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, db.ErrPostNotFound):
		writeError(w, "post not found", http.StatusNotFound)
	case errors.Is(err, db.ErrForbidden):
		writeError(w, "forbidden", http.StatusForbidden)
	default:
		slog.Error("post store failure", "op", op, "error", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	writeJSONStatus(w, data, http.StatusOK)
}

func writeJSONStatus(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
