package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, traceID string, handle gin.HandlerFunc) (*httptest.ResponseRecorder, map[string]interface{}) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		if traceID != "" {
			c.Set(TraceIDKey, traceID)
		}
		handle(c)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestEnvelope(t *testing.T) {
	t.Run("Success carries data and trace id", func(t *testing.T) {
		w, body := serve(t, "trace-1", func(c *gin.Context) { Success(c, gin.H{"id": "1"}) })
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(CodeSuccess), body["code"])
		assert.Equal(t, "trace-1", body["traceId"])
		assert.Equal(t, map[string]interface{}{"id": "1"}, body["data"])
	})

	t.Run("Fail keeps HTTP 200", func(t *testing.T) {
		w, body := serve(t, "trace-2", func(c *gin.Context) { Fail(c, ErrOrderStateChanged, "order state already changed") })
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(ErrOrderStateChanged), body["code"])
		assert.Equal(t, "trace-2", body["traceId"])
	})

	t.Run("Trace id omitted without the middleware", func(t *testing.T) {
		w, body := serve(t, "", func(c *gin.Context) { Error(c, http.StatusNotFound, ErrOrderNotFound, "order not found") })
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Nil(t, body["data"])
		_, ok := body["traceId"]
		assert.False(t, ok)
	})
}
