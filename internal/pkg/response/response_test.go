package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/futureofwork/core/internal/pkg/apperr"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func run(err error) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	Error(c, err)
	return w
}

func body(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", apperr.Validation("email", "Email already in use."), http.StatusBadRequest},
		{"invalid token", fmt.Errorf("verify: %w", apperr.ErrInvalidToken), http.StatusBadRequest},
		{"already verified", apperr.ErrAlreadyVerified, http.StatusBadRequest},
		{"unauthorized", apperr.ErrUnauthorized, http.StatusUnauthorized},
		{"forbidden", apperr.ErrForbidden, http.StatusForbidden},
		{"not found", apperr.ErrNotFound, http.StatusNotFound},
		{"rate limited", apperr.RateLimited(90 * time.Second), http.StatusTooManyRequests},
		{"internal", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := run(tt.err)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestErrorBodies(t *testing.T) {
	w := run(apperr.Validation("email", "Email already in use."))
	b := body(t, w)
	assert.Equal(t, "email", b["field"])
	assert.Equal(t, "Email already in use.", b["message"])

	w = run(fmt.Errorf("verify: %w", apperr.ErrInvalidToken))
	assert.Equal(t, apperr.ErrInvalidToken.Error(), body(t, w)["message"])

	w = run(apperr.RateLimited(90 * time.Second))
	assert.Equal(t, "90", w.Header().Get("Retry-After"))
	assert.EqualValues(t, 90, body(t, w)["retry_after"])
}

func TestHideInternalErrors(t *testing.T) {
	HideInternalErrors = true
	defer func() { HideInternalErrors = false }()

	w := run(errors.New("dsn leaked"))
	assert.Equal(t, "Internal server error.", body(t, w)["message"])
}

func TestOKWrapsSlices(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	OK(c, []int{1, 2})
	assert.JSONEq(t, `{"data":[1,2]}`, w.Body.String())
}
