package events

import (
	"context"
	"log/slog"

	"eddisonso.com/edd-blog/pkg/events"
)

// UserCache is the post service's replicated user table.
type UserCache interface {
	UpsertUserCache(ctx context.Context, userID, email, name string, version int64) (bool, error)
	DeleteUserCache(ctx context.Context, userID string, version int64) (bool, error)
}

// Handler applies user events to the user cache. Posts are never touched:
// a deleted user's posts stay in place and render without an author.
type Handler struct {
	cache UserCache
}

func NewHandler(cache UserCache) *Handler {
	return &Handler{cache: cache}
}

var _ events.EventHandler = (*Handler)(nil)

// OnUserSignup upserts the user. Redeliveries and stale events are no-ops.
func (h *Handler) OnUserSignup(ctx context.Context, event events.UserSignup) error {
	applied, err := h.cache.UpsertUserCache(ctx, event.UserID, event.Email, event.Name, event.Metadata.Version)
	if err != nil {
		slog.Error("failed to cache user", "error", err, "user_id", event.UserID)
		return err
	}
	if !applied {
		slog.Debug("ignoring stale user signup", "user_id", event.UserID, "version", event.Metadata.Version)
		return nil
	}
	slog.Info("user signup applied", "user_id", event.UserID, "name", event.Name, "version", event.Metadata.Version)
	return nil
}

// OnUserDelete tombstones the user. Unknown ids are not an error.
func (h *Handler) OnUserDelete(ctx context.Context, event events.UserDelete) error {
	applied, err := h.cache.DeleteUserCache(ctx, event.UserID, event.Metadata.Version)
	if err != nil {
		slog.Error("failed to remove user from cache", "error", err, "user_id", event.UserID)
		return err
	}
	if !applied {
		slog.Debug("ignoring stale user delete", "user_id", event.UserID, "version", event.Metadata.Version)
		return nil
	}
	slog.Info("user delete applied", "user_id", event.UserID, "version", event.Metadata.Version)
	return nil
}
