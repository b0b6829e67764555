package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(origins []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(New(origins))
	router.GET("/schedules", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestAllowedOriginEchoed(t *testing.T) {
	router := newRouter([]string{"http://ui.local/"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/schedules", nil)
	req.Header.Set("Origin", "http://ui.local")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://ui.local", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownOriginNotEchoed(t *testing.T) {
	router := newRouter([]string{"http://ui.local"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/schedules", nil)
	req.Header.Set("Origin", "http://evil.local")
	router.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestPreflightShortCircuits(t *testing.T) {
	router := newRouter(nil)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodOptions, "/schedules", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
