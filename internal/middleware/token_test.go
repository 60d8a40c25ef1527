package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestAuthorized(t *testing.T) {
	// No token configured -> accept
	if !Authorized(nil, "") {
		t.Fatalf("expected true when no token is configured")
	}
	r := httptest.NewRequest(http.MethodGet, "/?token=secret", nil)
	if !Authorized(r, "secret") {
		t.Fatalf("expected true with query token")
	}
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "secret")
	if !Authorized(r2, "secret") {
		t.Fatalf("expected true with X-Auth-Token")
	}
	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "Bearer secret")
	if !Authorized(r3, "secret") {
		t.Fatalf("expected true with Authorization bearer")
	}
}

func TestAuthorized_BearerCaseInsensitivePrefix(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "bearer secret")
	if !Authorized(r, "secret") {
		t.Fatalf("expected true with lowercase bearer prefix")
	}
}

func TestAuthorized_NegativeCases(t *testing.T) {
	r1 := httptest.NewRequest(http.MethodGet, "/?token=wrong", nil)
	if Authorized(r1, "secret") {
		t.Fatalf("expected false with wrong query token")
	}
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "nope")
	if Authorized(r2, "secret") {
		t.Fatalf("expected false with wrong X-Auth-Token")
	}
	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "Bearer nope")
	if Authorized(r3, "secret") {
		t.Fatalf("expected false with wrong bearer token")
	}
	r4 := httptest.NewRequest(http.MethodGet, "/", nil)
	r4.Header.Set("Authorization", "secret")
	if Authorized(r4, "secret") {
		t.Fatalf("expected false without bearer scheme")
	}
}

func TestControlToken_Middleware(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }, ControlToken("secret"))

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	e.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
