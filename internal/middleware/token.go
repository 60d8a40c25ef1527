// Package middleware holds echo middleware shared by the HTTP surface.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ControlToken rejects requests that do not carry token. An empty token
// disables the check.
func ControlToken(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !Authorized(c.Request(), token) {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}
			return next(c)
		}
	}
}

// Authorized accepts a bearer Authorization header, an X-Auth-Token header,
// or a token query parameter for websocket clients that cannot set headers.
func Authorized(r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	if r == nil {
		return false
	}
	candidates := []string{r.Header.Get("X-Auth-Token"), r.URL.Query().Get("token")}
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		candidates = append(candidates, strings.TrimSpace(auth[7:]))
	}
	for _, got := range candidates {
		if got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1 {
			return true
		}
	}
	return false
}
