package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/memohai/replyd/internal/logger"
)

type okHandler struct{}

func (okHandler) Register(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })
	e.GET("/chats/:chat_id/messages", func(c echo.Context) error { return c.String(http.StatusOK, "[]") })
}

func signed(t *testing.T, secret string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "replyctl",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestBearerAuth(t *testing.T) {
	t.Parallel()
	srv := NewServer(logger.Discard(), "", "s3cret", okHandler{})

	cases := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{name: "liveness is public", path: "/ping", want: http.StatusOK},
		{name: "missing token", path: "/chats/c/messages", want: http.StatusUnauthorized},
		{name: "wrong key", path: "/chats/c/messages", token: signed(t, "other"), want: http.StatusUnauthorized},
		{name: "valid token", path: "/chats/c/messages", token: signed(t, "s3cret"), want: http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.token != "" {
			req.Header.Set(echo.HeaderAuthorization, "Bearer "+tc.token)
		}
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: status %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}

func TestNoSecretNoAuth(t *testing.T) {
	t.Parallel()
	srv := NewServer(logger.Discard(), "", "", okHandler{})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chats/c/messages", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if srv.addr != ":8080" {
		t.Fatalf("default addr = %s", srv.addr)
	}
}
