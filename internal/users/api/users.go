package api

import (
	"errors"
	"log/slog"
	"net/http"

	"eddisonso.com/edd-blog/internal/users/db"
)

// syncUser is the shape consumed by the post service's bootstrap sync.
type syncUser struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Version int64  `json:"version"`
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.GetUserByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, db.ErrUserNotFound) {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("failed to get user", "error", err)
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, toUserResponse(user))
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.validateToken(r)
	if !ok {
		writeError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	userID := r.PathValue("id")
	if claims.UserID != userID {
		writeError(w, "forbidden", http.StatusForbidden)
		return
	}

	ctx := r.Context()
	version, err := h.store.DeleteUser(ctx, userID)
	if errors.Is(err, db.ErrUserNotFound) {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("failed to delete user", "user_id", userID, "error", err)
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}

	if h.publisher != nil {
		if err := h.publisher.PublishUserDelete(ctx, userID, version); err != nil {
			slog.Error("failed to publish user delete", "user_id", userID, "error", err)
			writeError(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	slog.Info("user deleted", "user_id", userID)
	writeJSON(w, map[string]string{"status": "deleted"})
}

// handleListUsers returns every user with its version for the post service's
// bootstrap sync.
func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		slog.Error("failed to list users", "error", err)
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := make([]syncUser, 0, len(users))
	for _, u := range users {
		resp = append(resp, syncUser{
			UserID:  u.UserID,
			Email:   u.Email,
			Name:    u.Name,
			Version: u.Version,
		})
	}
	writeJSON(w, resp)
}
