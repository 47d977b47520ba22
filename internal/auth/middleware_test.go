package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"go-blog/internal/role"
	"go-blog/internal/token"
	"go-blog/internal/user"
)

type fixture struct {
	users *user.Service
	codec *token.Codec
	mr    *miniredis.Miniredis
	rdb   *redis.Client
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&role.Role{}, &user.User{}, &user.Follow{}))
	require.NoError(t, role.Seed(context.Background(), db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	mr, rdb := setupTestRedis(t)
	codec := token.NewCodec("test-secret")
	return &fixture{
		users: user.NewService(db, codec, user.Options{}),
		codec: codec,
		mr:    mr,
		rdb:   rdb,
	}
}

func (f *fixture) register(t *testing.T, email, password string, confirmed bool) *user.User {
	t.Helper()
	u, err := f.users.Register(context.Background(), user.NewAccount{
		Email:     email,
		Username:  strings.SplitN(email, "@", 2)[0],
		Password:  password,
		Confirmed: confirmed,
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) router(extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{BasicAuth(f.users, f.rdb)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		a := CurrentActor(c)
		c.JSON(http.StatusOK, gin.H{"anonymous": a.IsAnonymous(), "tokenUsed": TokenUsed(c)})
	})
	r.GET("/test", handlers...)
	return r
}

func basic(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

func do(r http.Handler, authHeader string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	e, ok := decode(t, w)["error"].(map[string]any)
	require.True(t, ok, "missing error object: %s", w.Body.String())
	code, _ := e["code"].(string)
	return code
}

func TestBasicAuth_NoHeaderIsAnonymous(t *testing.T) {
	f := setupFixture(t)
	w := do(f.router(), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["anonymous"])
}

func TestBasicAuth_EmptyUsernameIsAnonymous(t *testing.T) {
	f := setupFixture(t)
	w := do(f.router(), basic("", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["anonymous"])
}

func TestBasicAuth_BadPassword(t *testing.T) {
	f := setupFixture(t)
	f.register(t, "john@example.com", "cat", true)
	w := do(f.router(), basic("john@example.com", "dog"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
}

func TestBasicAuth_Password(t *testing.T) {
	f := setupFixture(t)
	f.register(t, "john@example.com", "cat", true)
	w := do(f.router(), basic("John@Example.com", "cat"))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["anonymous"])
	assert.Equal(t, false, body["tokenUsed"])
}

func TestBasicAuth_Token(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	u := f.register(t, "john@example.com", "cat", true)
	issued, err := IssueAPIToken(ctx, f.users, f.rdb, u, time.Hour)
	require.NoError(t, err)

	w := do(f.router(), basic(issued.Token, ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["tokenUsed"])

	_, err = DeleteSessions(ctx, f.rdb, u.ID)
	require.NoError(t, err)
	w = do(f.router(), basic(issued.Token, ""))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "revoked token")
	assert.Equal(t, CodeTokenInvalid, errorCode(t, w))
}

func TestBasicAuth_TokenErrors(t *testing.T) {
	f := setupFixture(t)
	u := f.register(t, "john@example.com", "cat", true)

	w := do(f.router(), basic("not-a-token", ""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, CodeTokenInvalid, errorCode(t, w))

	confirm, err := f.users.GenerateConfirmationToken(u, time.Hour)
	require.NoError(t, err)
	w = do(f.router(), basic(confirm, ""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, CodeTokenWrongPurpose, errorCode(t, w))

	past := time.Now().Add(-2 * time.Hour)
	stale, err := f.codec.WithClock(func() time.Time { return past }).Issue(token.Access{AccountID: u.ID}, time.Hour)
	require.NoError(t, err)
	w = do(f.router(), basic(stale, ""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, CodeTokenExpired, errorCode(t, w))
}

func TestRequireConfirmed(t *testing.T) {
	f := setupFixture(t)
	f.register(t, "john@example.com", "cat", false)
	r := f.router(RequireConfirmed())

	w := do(r, basic("john@example.com", "cat"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Unconfirmed account")

	w = do(r, "")
	assert.Equal(t, http.StatusOK, w.Code, "anonymous requests pass")
}

func TestRequirePassword(t *testing.T) {
	f := setupFixture(t)
	u := f.register(t, "john@example.com", "cat", true)
	issued, err := IssueAPIToken(context.Background(), f.users, f.rdb, u, time.Hour)
	require.NoError(t, err)
	r := f.router(RequirePassword())

	assert.Equal(t, http.StatusOK, do(r, basic("john@example.com", "cat")).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, basic(issued.Token, "")).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
}

func TestRequirePermission(t *testing.T) {
	f := setupFixture(t)
	f.register(t, "john@example.com", "cat", true)

	r := f.router(RequireAuthenticated(), RequirePermission(role.Follow))
	assert.Equal(t, http.StatusOK, do(r, basic("john@example.com", "cat")).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)

	r = f.router(RequirePermission(role.Administer))
	assert.Equal(t, http.StatusForbidden, do(r, basic("john@example.com", "cat")).Code)
	assert.Equal(t, http.StatusForbidden, do(r, "").Code)
}

func TestBasicAuth_PingsLastSeen(t *testing.T) {
	f := setupFixture(t)
	u := f.register(t, "john@example.com", "cat", true)
	before := u.LastSeen

	time.Sleep(5 * time.Millisecond)
	require.Equal(t, http.StatusOK, do(f.router(), basic("john@example.com", "cat")).Code)
	stored, err := f.users.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.True(t, stored.LastSeen.After(before))
}
