package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"

	"go-blog/internal/paging"
	"go-blog/internal/post"
	"go-blog/internal/role"
	"go-blog/internal/token"
	"go-blog/internal/user"
)

func TestHealthHandler_ReturnsOk(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", healthHandler)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("expected response to contain 'ok', got: %s", w.Body.String())
	}
}

func TestConfigHandler_HidesSecrets(t *testing.T) {
	cfg := testConfig()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/config", configHandler(cfg))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/config", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"postsPerPage":20`) {
		t.Errorf("expected page sizes, got: %s", w.Body.String())
	}
	if strings.Contains(w.Body.String(), cfg.Server.SecretKey) || strings.Contains(w.Body.String(), cfg.Blog.Admin) {
		t.Errorf("config leaked a secret: %s", w.Body.String())
	}
}

func TestRespondError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{token.ErrExpired, http.StatusBadRequest, "token_expired"},
		{token.ErrWrongSubject, http.StatusBadRequest, "token_not_yours"},
		{token.ErrWrongIntent, http.StatusBadRequest, "token_wrong_purpose"},
		{token.ErrSignature, http.StatusBadRequest, "token_invalid"},
		{user.ErrNotFound, http.StatusNotFound, "not_found"},
		{post.ErrNotFound, http.StatusNotFound, "not_found"},
		{user.ErrEmailTaken, http.StatusConflict, "conflict"},
		{user.ErrInvalidCredentials, http.StatusBadRequest, "invalid_password"},
		{post.ErrEmptyBody, http.StatusBadRequest, "validation"},
		{role.ErrUnknownRole, http.StatusBadRequest, "validation"},
		{post.ErrForbidden, http.StatusForbidden, "forbidden"},
		{fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}), http.StatusServiceUnavailable, "retry"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
	}
	gin.SetMode(gin.TestMode)
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			r := gin.New()
			r.GET("/x", func(c *gin.Context) { respondError(c, tc.err) })
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest("GET", "/x", nil))
			if w.Code != tc.status {
				t.Errorf("expected %d, got %d", tc.status, w.Code)
			}
			if code := errCode(t, w); code != tc.code {
				t.Errorf("expected code %q, got %q", tc.code, code)
			}
			if tc.status == http.StatusServiceUnavailable && w.Header().Get("Retry-After") == "" {
				t.Errorf("expected Retry-After header")
			}
		})
	}
}

func TestPageLinks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/v1/posts?page=2&x=1", nil)

	prev, next := pageLinks(c, paging.New(2, 10, 10), 25)
	if prev == nil || *prev != "/api/v1/posts?page=1&x=1" {
		t.Errorf("unexpected prev %v", prev)
	}
	if next == nil || *next != "/api/v1/posts?page=3&x=1" {
		t.Errorf("unexpected next %v", next)
	}

	prev, next = pageLinks(c, paging.New(1, 10, 10), 10)
	if prev != nil || next != nil {
		t.Errorf("expected no links on a single page, got %v %v", prev, next)
	}
}

func TestIDParam_RejectsGarbage(t *testing.T) {
	env := setupAPI(t, false)
	for _, path := range []string{"/posts/abc", "/posts/0", "/users/-1", "/comments/1.5"} {
		w := env.do("GET", prefix+path, "", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("GET %s: expected 404, got %d", path, w.Code)
		}
	}
}
