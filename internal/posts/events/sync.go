package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const syncTimeout = 30 * time.Second

// syncedUser mirrors the user service's GET /api/users entries.
type syncedUser struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Version int64  `json:"version"`
}

// SyncUsersFromUserService seeds the cache with every user the user service
// knows about. Versions are carried over, so rows already updated by newer
// events are left alone. A non-200 response is logged, not returned.
func SyncUsersFromUserService(ctx context.Context, client *http.Client, cache UserCache, userServiceURL, serviceKey string) error {
	if userServiceURL == "" {
		slog.Warn("USER_SERVICE_URL not set, skipping initial user sync")
		return nil
	}
	if client == nil {
		client = http.DefaultClient
	}

	slog.Info("syncing users from user service", "url", userServiceURL)

	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(userServiceURL, "/")+"/api/users", nil)
	if err != nil {
		return fmt.Errorf("build sync request: %w", err)
	}
	if serviceKey != "" {
		req.Header.Set("X-Service-Key", serviceKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch users: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Error("user service returned non-200", "status", resp.StatusCode)
		return nil
	}

	var users []syncedUser
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return fmt.Errorf("decode users: %w", err)
	}

	var applied int
	for _, u := range users {
		ok, err := cache.UpsertUserCache(ctx, u.UserID, u.Email, u.Name, u.Version)
		if err != nil {
			slog.Error("failed to upsert user during sync", "error", err, "user_id", u.UserID)
			continue
		}
		if ok {
			applied++
		}
	}

	slog.Info("user sync complete", "count", len(users), "applied", applied)
	return nil
}
