package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIPFromRequest(t *testing.T) {
	t.Parallel()
	tests := []struct {
		remoteAddr string
		want       string
	}{
		{"203.0.113.7:54321", "203.0.113.7"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"203.0.113.7", "203.0.113.7"}, // no port, returned as-is
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = tt.remoteAddr
		if got := IPFromRequest(r); got != tt.want {
			t.Errorf("IPFromRequest(%q) = %q, want %q", tt.remoteAddr, got, tt.want)
		}
	}
}

func TestMiddlewareMintsAndKeepsAnonID(t *testing.T) {
	t.Parallel()
	var seen string
	h := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CandidateIDFromContext(r.Context())
	}))

	// First request mints a cookie.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if !anonIDPattern.MatchString(seen) {
		t.Fatalf("minted candidate ID %q does not match anon pattern", seen)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != AnonCookieName {
		t.Fatalf("expected one %s cookie, got %v", AnonCookieName, cookies)
	}

	// Second request with the cookie keeps the same identity.
	first := seen
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(cookies[0])
	h.ServeHTTP(httptest.NewRecorder(), r)
	if seen != first {
		t.Errorf("candidate ID changed across requests: %q then %q", first, seen)
	}
}
