package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func init() { gin.SetMode(gin.TestMode) }

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.GET("/x", append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": GetUserID(c).String(), "actor": GetActor(c)})
	})...)
	return r
}

func do(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter(AuthMiddleware(testSecret))
	uid := uuid.New()

	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "garbage").Code)

	expired := signToken(t, jwt.MapClaims{"sub": uid.String(), "exp": time.Now().Add(-time.Minute).Unix()})
	assert.Equal(t, http.StatusUnauthorized, do(r, expired).Code)

	valid := signToken(t, jwt.MapClaims{"sub": uid.String(), "role": "customer", "email": "a@b.c", "exp": time.Now().Add(time.Hour).Unix()})
	w := do(r, valid)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), uid.String())
	assert.Contains(t, w.Body.String(), "a@b.c")
}

func TestAdminOnly(t *testing.T) {
	r := newRouter(AuthMiddleware(testSecret), AdminOnly())
	exp := time.Now().Add(time.Hour).Unix()

	customer := signToken(t, jwt.MapClaims{"sub": uuid.NewString(), "role": "customer", "exp": exp})
	assert.Equal(t, http.StatusForbidden, do(r, customer).Code)

	admin := signToken(t, jwt.MapClaims{"sub": uuid.NewString(), "role": "admin", "exp": exp})
	assert.Equal(t, http.StatusOK, do(r, admin).Code)
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(1, 2)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("1.1.1.1"))
	assert.False(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("2.2.2.2"))

	now = now.Add(time.Second)
	assert.True(t, l.Allow("1.1.1.1"))

	now = now.Add(time.Hour)
	l.Sweep()
	assert.Empty(t, l.limiters)
}

func TestRateLimiterMiddleware(t *testing.T) {
	r := newRouter(NewRateLimiter(0.001, 1).Middleware())
	assert.Equal(t, http.StatusOK, do(r, "").Code)
	w := do(r, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}
