package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"CONFIG_FILE", "HTTP_ADDR", "LOG_LEVEL", "DATABASE_URL", "JWT_SECRET",
		"SERVICE_API_KEY", "BROKER_URL", "TOKEN_TTL", "CONSUMER_NAME",
		"USER_SERVICE_URL", "TOMBSTONE_TTL", "CORS_ORIGINS", "TRUSTED_PROXIES",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadUsers_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/users")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SERVICE_API_KEY", "key")

	cfg, err := LoadUsers()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Fatalf("token ttl = %s, want 24h", cfg.TokenTTL)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("addr = %q", cfg.HTTPAddr)
	}
	if cfg.BrokerURL != "" {
		t.Fatalf("broker url should be optional, got %q", cfg.BrokerURL)
	}
}

func TestLoadUsers_MissingRequired(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "secret")

	_, err := LoadUsers()
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}
}

func TestLoadUsers_BadDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/users")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SERVICE_API_KEY", "key")
	t.Setenv("TOKEN_TTL", "a year")

	if _, err := LoadUsers(); err == nil {
		t.Fatal("expected error for unparsable TOKEN_TTL")
	}
}

func TestLoadPosts_FileWithEnvOverride(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "posts.yaml")
	content := `
database_url: postgres://file/posts
jwt_secret: file-secret
broker_url: nats://file:4222
consumer_name: posts-file
tombstone_ttl: 336h
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("BROKER_URL", "amqp://env:5672/")

	cfg, err := LoadPosts()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://file/posts" {
		t.Fatalf("database url = %q", cfg.DatabaseURL)
	}
	if cfg.BrokerURL != "amqp://env:5672/" {
		t.Fatalf("env should override file, got %q", cfg.BrokerURL)
	}
	if cfg.ConsumerName != "posts-file" {
		t.Fatalf("consumer name = %q", cfg.ConsumerName)
	}
	if cfg.TombstoneTTL != 336*time.Hour {
		t.Fatalf("tombstone ttl = %s", cfg.TombstoneTTL)
	}
}

func TestLoadPosts_TombstoneTTLTooShort(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/posts")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("BROKER_URL", "nats://nats:4222")
	t.Setenv("TOMBSTONE_TTL", "1h")

	if _, err := LoadPosts(); err == nil {
		t.Fatal("expected error for tombstone ttl shorter than stream retention")
	}
}

func TestLoadUsers_CORSOrigins(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/users")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SERVICE_API_KEY", "key")
	t.Setenv("CORS_ORIGINS", "https://blog.example.com, ,https://admin.example.com")

	cfg, err := LoadUsers()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"https://blog.example.com", "https://admin.example.com"}
	if strings.Join(cfg.CORSOrigins, "|") != strings.Join(want, "|") {
		t.Fatalf("origins = %v, want %v", cfg.CORSOrigins, want)
	}
	if len(cfg.TrustedProxies) != 1 || cfg.TrustedProxies[0] != "10.0.0.1" {
		t.Fatalf("trusted proxies = %v", cfg.TrustedProxies)
	}
}
