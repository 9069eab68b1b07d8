package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/futureofwork/core/internal/pkg/jwt"
	"github.com/futureofwork/core/internal/pkg/ratelimit"
	fowredis "github.com/futureofwork/core/internal/pkg/redis"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSessions map[string]bool

func (s stubSessions) IsActive(_, sessionID string) (bool, error) { return s[sessionID], nil }

func serve(r *gin.Engine, method, path string, header http.Header) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	signer := jwt.NewSigner("test-secret")
	a := NewAuthenticator(signer, stubSessions{"live": true}, nil)

	r := gin.New()
	r.GET("/me", a.Auth(), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUserID(c)+"/"+CurrentSessionID(c))
	})

	live, err := signer.Sign("u1", "live", jwt.TypeAccess, time.Minute)
	require.NoError(t, err)
	revoked, err := signer.Sign("u1", "gone", jwt.TypeAccess, time.Minute)
	require.NoError(t, err)
	refresh, err := signer.Sign("u1", "live", jwt.TypeRefresh, time.Minute)
	require.NoError(t, err)

	w := serve(r, http.MethodGet, "/me", http.Header{"Authorization": {"Bearer " + live}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1/live", w.Body.String())

	for name, tok := range map[string]string{"revoked session": revoked, "refresh token": refresh, "missing": ""} {
		w := serve(r, http.MethodGet, "/me", http.Header{"Authorization": {"Bearer " + tok}})
		assert.Equal(t, http.StatusUnauthorized, w.Code, name)
	}
}

func TestOptionalAuth(t *testing.T) {
	a := NewAuthenticator(jwt.NewSigner("test-secret"), stubSessions{}, nil)
	r := gin.New()
	r.GET("/", a.OptionalAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, "anon=%v", !IsAuthenticated(c))
	})

	w := serve(r, http.MethodGet, "/", http.Header{"Authorization": {"Bearer junk"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anon=true", w.Body.String())
}

func TestNormalizeToken(t *testing.T) {
	assert.Equal(t, "abc", NormalizeToken("  Bearer abc "))
	assert.Equal(t, "abc", NormalizeToken("bearer abc"))
	assert.Equal(t, "abc", NormalizeToken("abc"))
	assert.Equal(t, "", NormalizeToken("   "))
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, CurrentRequestID(c)) })

	w := serve(r, http.MethodGet, "/", nil)
	assert.NotEmpty(t, w.Body.String())
	assert.Equal(t, w.Body.String(), w.Header().Get("X-Request-ID"))

	w = serve(r, http.MethodGet, "/", http.Header{"X-Request-Id": {"abc123"}})
	assert.Equal(t, "abc123", w.Body.String())
}

func TestThrottleScope(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	th, err := NewThrottles(ratelimit.New(fowredis.Wrap(rc), "test:"), map[string]string{"login": "2/minute"}, zap.NewNop())
	require.NoError(t, err)

	r := gin.New()
	r.POST("/login", th.Scope("login"), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/open", th.Scope("unknown"), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusNoContent, serve(r, http.MethodPost, "/login", nil).Code)
	}
	w := serve(r, http.MethodPost, "/login", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusNoContent, serve(r, http.MethodPost, "/open", nil).Code)
	}
}

func TestNewThrottlesRejectsBadRate(t *testing.T) {
	_, err := NewThrottles(nil, map[string]string{"x": "lots"}, zap.NewNop())
	assert.Error(t, err)
}

func TestIdempotence(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	calls := 0
	r := gin.New()
	r.POST("/posts", Idempotence(rc), func(c *gin.Context) {
		calls++
		c.Status(http.StatusCreated)
	})

	h := http.Header{"Idempotency-Key": {"k1"}}
	assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/posts", h).Code)
	assert.Equal(t, http.StatusConflict, serve(r, http.MethodPost, "/posts", h).Code)
	assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/posts", nil).Code)
	assert.Equal(t, 2, calls)

	val, err := rc.Get(context.Background(), "fow:idempotence:192.0.2.1:POST:/posts:k1").Result()
	require.NoError(t, err)
	assert.Equal(t, "1", val)
}
