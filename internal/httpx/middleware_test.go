package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	var reached bool
	h := CORS([]string{"https://blog.example.com"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	cases := []struct {
		name      string
		method    string
		origin    string
		wantAllow string
		wantNext  bool
	}{
		{"allowed origin", http.MethodGet, "https://blog.example.com", "https://blog.example.com", true},
		{"other origin", http.MethodGet, "https://evil.example.com", "", true},
		{"preflight", http.MethodOptions, "https://blog.example.com", "https://blog.example.com", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reached = false
			req := httptest.NewRequest(tc.method, "/api/posts", nil)
			req.Header.Set("Origin", tc.origin)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantAllow {
				t.Fatalf("allow origin = %q, want %q", got, tc.wantAllow)
			}
			if reached != tc.wantNext {
				t.Fatalf("reached next = %v, want %v", reached, tc.wantNext)
			}
		})
	}
}

func TestCORS_WildcardNeverSendsCredentials(t *testing.T) {
	h := CORS([]string{"*", "https://blog.example.com"}, http.NotFoundHandler())

	cases := []struct {
		origin      string
		wantAllow   string
		wantCredHdr string
	}{
		{"https://evil.example.com", "*", ""},
		{"https://blog.example.com", "https://blog.example.com", "true"},
	}
	for _, tc := range cases {
		t.Run(tc.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
			req.Header.Set("Origin", tc.origin)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantAllow {
				t.Fatalf("allow origin = %q, want %q", got, tc.wantAllow)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tc.wantCredHdr {
				t.Fatalf("allow credentials = %q, want %q", got, tc.wantCredHdr)
			}
		})
	}
}

func TestLogRequests_PassesThrough(t *testing.T) {
	h := LogRequests(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
}
