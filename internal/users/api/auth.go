package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"eddisonso.com/edd-blog/internal/auth"
	"eddisonso.com/edd-blog/internal/users/db"
)

type signupRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"required,min=3,max=30,username"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type signinRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

const maxPasswordBytes = 72

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)

	if err := h.validate.Struct(req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	// bcrypt counts bytes, the validator counts characters.
	if len(req.Password) > maxPasswordBytes {
		writeError(w, "password must be at most 72 bytes", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if exists, err := h.store.EmailExists(ctx, req.Email); err != nil {
		slog.Error("failed to check email", "error", err)
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	} else if exists {
		writeError(w, db.ErrEmailTaken.Error(), http.StatusConflict)
		return
	}
	if exists, err := h.store.NameExists(ctx, req.Name); err != nil {
		slog.Error("failed to check name", "error", err)
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	} else if exists {
		writeError(w, db.ErrNameTaken.Error(), http.StatusConflict)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}

	user, err := h.store.CreateUser(ctx, req.Email, req.Name, string(hash))
	if errors.Is(err, db.ErrEmailTaken) || errors.Is(err, db.ErrNameTaken) {
		// Lost a race with a concurrent signup.
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		slog.Error("failed to create user", "error", err)
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}

	// The user row is committed; a publish failure is reported but not undone.
	if h.publisher != nil {
		if err := h.publisher.PublishUserSignup(ctx, user.UserID, user.Email, user.Name, user.Version); err != nil {
			slog.Error("failed to publish user signup", "user_id", user.UserID, "error", err)
			writeError(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	slog.Info("user signed up", "user_id", user.UserID, "name", user.Name)
	writeJSONStatus(w, toUserResponse(user), http.StatusCreated)
}

func (h *Handler) handleSignin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = normalizeEmail(req.Email)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Rate limit by IP and email
	clientIP := h.clientIP(r)
	if !h.ipLimiter.allow(clientIP) {
		writeError(w, "too many sign-in attempts, try again later", http.StatusTooManyRequests)
		return
	}
	if !h.userLimiter.allow(req.Email) {
		writeError(w, "too many sign-in attempts for this account, try again later", http.StatusTooManyRequests)
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, db.ErrUserNotFound) {
		writeError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		slog.Error("failed to load user", "error", err)
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, expires, err := auth.Issue(h.jwtSecret, user.UserID, user.Email, user.Name, h.tokenTTL)
	if err != nil {
		slog.Error("failed to issue token", "user_id", user.UserID, "error", err)
		writeError(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	h.userLimiter.reset(req.Email)

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, sessionResponse{
		UserID:    user.UserID,
		Email:     user.Email,
		Name:      user.Name,
		Token:     token,
		ExpiresAt: expires,
	})
}

func (h *Handler) handleSignout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, map[string]string{"status": "ok"})
}

func toUserResponse(u *db.User) userResponse {
	return userResponse{
		UserID:    u.UserID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	}
}
