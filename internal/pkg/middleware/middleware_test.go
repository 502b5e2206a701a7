package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"orders_manager/internal/pkg/config"
	"orders_manager/pkg/response"
	"orders_manager/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAuthMiddleware(t *testing.T) {
	config.GlobalConfig.JWT.Secret = "0123456789abcdef0123456789abcdef"

	r := gin.New()
	r.GET("/me", AuthMiddleware(), func(c *gin.Context) {
		id, name, userType := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "name": name, "type": userType})
	})

	t.Run("Valid token exposes the user", func(t *testing.T) {
		token, _, err := utils.GenerateToken(7, "张三", "USER", time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, float64(7), body["id"])
		assert.Equal(t, "张三", body["name"])
		assert.Equal(t, "USER", body["type"])
	})

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"Missing header", "", response.ErrAuthFailed},
		{"Wrong scheme", "Basic abc", response.ErrAuthFailed},
		{"Garbage token", "Bearer not-a-token", response.ErrTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tt.code, decode(t, w).Code)
		})
	}
}

func TestTraceMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(TraceMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextTraceID))
	})

	t.Run("Generates an id", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

		id := w.Header().Get(HeaderTraceID)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("Keeps the upstream id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(HeaderTraceID, "upstream-1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "upstream-1", w.Header().Get(HeaderTraceID))
		assert.Equal(t, "upstream-1", w.Body.String())
	})

	t.Run("Envelope echoes the id", func(t *testing.T) {
		r.GET("/fail", func(c *gin.Context) {
			response.Fail(c, response.ErrOrderStateChanged, "order state already changed")
		})
		req := httptest.NewRequest(http.MethodGet, "/fail", nil)
		req.Header.Set(HeaderTraceID, "upstream-2")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, "upstream-2", decode(t, w).TraceID)
	})
}

func TestRateLimit(t *testing.T) {
	t.Run("Burst then reject", func(t *testing.T) {
		l := NewIPRateLimiter(rate.Limit(0.001), 2, time.Minute)
		assert.True(t, l.Allow("10.0.0.1"))
		assert.True(t, l.Allow("10.0.0.1"))
		assert.False(t, l.Allow("10.0.0.1"))
		assert.True(t, l.Allow("10.0.0.2"))
	})

	t.Run("Middleware answers 429", func(t *testing.T) {
		l := NewIPRateLimiter(rate.Limit(0.001), 1, time.Minute)
		r := gin.New()
		r.Use(RateLimitMiddleware(l))
		r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, response.ErrTooManyRequests, decode(t, w).Code)
	})

	t.Run("Cleanup drops idle visitors", func(t *testing.T) {
		l := NewIPRateLimiter(rate.Limit(1), 1, 0)
		l.Allow("10.0.0.1")
		time.Sleep(time.Millisecond)
		assert.Equal(t, 1, l.Cleanup())
		assert.Equal(t, 0, l.Cleanup())
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RecoveryMiddleware(), MetricsMiddleware(nil))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
