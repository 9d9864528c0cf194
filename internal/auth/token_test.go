package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var secret = []byte("test-secret")

func TestIssueParse(t *testing.T) {
	token, expires, err := Issue(secret, "u1", "a@b.com", "alice", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(expires) > time.Hour {
		t.Fatalf("expires = %v", expires)
	}

	claims, err := Parse(secret, token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != "u1" || claims.Email != "a@b.com" || claims.Name != "alice" || claims.Subject != "u1" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParse_Rejects(t *testing.T) {
	expired, _, _ := Issue(secret, "u1", "a@b.com", "alice", -time.Minute)
	other, _, _ := Issue([]byte("other"), "u1", "a@b.com", "alice", time.Hour)
	noUser, _, _ := Issue(secret, "", "a@b.com", "alice", time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := map[string]string{
		"expired":      expired,
		"wrong secret": other,
		"no user id":   noUser,
		"alg none":     none,
		"garbage":      "not.a.token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(secret, token); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestFromRequest(t *testing.T) {
	token, _, _ := Issue(secret, "u1", "a@b.com", "alice", time.Hour)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := FromRequest(secret, r); !errors.Is(err, ErrNoToken) {
		t.Fatalf("err = %v, want ErrNoToken", err)
	}

	r.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	if c, err := FromRequest(secret, r); err != nil || c.UserID != "u1" {
		t.Fatalf("cookie: %+v, %v", c, err)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	if c, err := FromRequest(secret, r); err != nil || c.UserID != "u1" {
		t.Fatalf("header: %+v, %v", c, err)
	}
}
