package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"eddisonso.com/edd-blog/internal/auth"
	"eddisonso.com/edd-blog/internal/users/db"
	"eddisonso.com/edd-blog/internal/validation"
)

const maxBodyBytes = 1 << 20

// UserStore is the canonical user table.
type UserStore interface {
	CreateUser(ctx context.Context, email, name, passwordHash string) (*db.User, error)
	GetUserByID(ctx context.Context, userID string) (*db.User, error)
	GetUserByEmail(ctx context.Context, email string) (*db.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	NameExists(ctx context.Context, name string) (bool, error)
	DeleteUser(ctx context.Context, userID string) (int64, error)
	ListUsers(ctx context.Context) ([]*db.User, error)
}

// EventPublisher emits user lifecycle events after a mutation commits.
type EventPublisher interface {
	PublishUserSignup(ctx context.Context, userID, email, name string, version int64) error
	PublishUserDelete(ctx context.Context, userID string, version int64) error
}

type Handler struct {
	store         UserStore
	publisher     EventPublisher
	validate      *validation.Validator
	jwtSecret     []byte
	tokenTTL      time.Duration
	serviceAPIKey string
	ipLimiter     *rateLimiter
	userLimiter   *rateLimiter

	trustedProxies map[string]bool
}

type Config struct {
	Store         UserStore
	Publisher     EventPublisher // nil disables event publishing
	JWTSecret     []byte
	TokenTTL      time.Duration
	ServiceAPIKey string

	// TrustedProxies are peer IPs whose X-Forwarded-For is believed.
	TrustedProxies []string
}

func NewHandler(cfg Config) *Handler {
	trusted := make(map[string]bool, len(cfg.TrustedProxies))
	for _, ip := range cfg.TrustedProxies {
		trusted[ip] = true
	}
	return &Handler{
		store:         cfg.Store,
		publisher:     cfg.Publisher,
		validate:      validation.New(),
		jwtSecret:     cfg.JWTSecret,
		tokenTTL:      cfg.TokenTTL,
		serviceAPIKey: cfg.ServiceAPIKey,
		ipLimiter:     newRateLimiter(20, 15*time.Minute),
		userLimiter:   newRateLimiter(10, 15*time.Minute),

		trustedProxies: trusted,
	}
}

// Close stops the rate limiter sweepers.
func (h *Handler) Close() {
	h.ipLimiter.stop()
	h.userLimiter.stop()
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Public auth endpoints
	mux.HandleFunc("POST /api/users/signup", h.handleSignup)
	mux.HandleFunc("POST /api/users/signin", h.handleSignin)
	mux.HandleFunc("POST /api/users/signout", h.handleSignout)

	mux.HandleFunc("GET /api/users/{id}", h.handleGetUser)
	mux.HandleFunc("DELETE /api/users/{id}", h.handleDeleteUser)

	// Service-to-service endpoints (require X-Service-Key header)
	mux.HandleFunc("GET /api/users", h.serviceAuth(h.handleListUsers))

	mux.HandleFunc("GET /healthz", h.handleHealthz)
}

func (h *Handler) serviceAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Service-Key")
		if key == "" || key != h.serviceAPIKey {
			writeError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (h *Handler) validateToken(r *http.Request) (*auth.Claims, bool) {
	claims, err := auth.FromRequest(h.jwtSecret, r)
	if err != nil {
		return nil, false
	}
	return claims, true
}

// clientIP returns the peer address. Forwarding headers are honoured only
// when the peer is a configured trusted proxy; the rightmost untrusted
// X-Forwarded-For entry is the client.
func (h *Handler) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !h.trustedProxies[host] {
		return host
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			ip := strings.TrimSpace(hops[i])
			if ip != "" && !h.trustedProxies[ip] {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return host
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
