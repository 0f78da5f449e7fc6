package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"speaktoheaven/logger"
	"speaktoheaven/models"
	"speaktoheaven/services"
)

type stubVerifier struct{}

func (stubVerifier) ParseToken(raw string) (services.Claims, error) {
	if raw != "good" {
		return services.Claims{}, errors.New("bad token")
	}
	return services.Claims{UserID: "u-1", Email: "a@example.com"}, nil
}

func (stubVerifier) SystemUser(context.Context) (models.User, error) {
	return models.User{ID: "system", Email: services.SystemUserEmail}, nil
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), RequestLogger(logger.Nop()))
	r.Use(mw...)
	r.GET("/x", func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	return r
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	r := newEngine(AuthRequired(stubVerifier{}, true))

	w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer bad")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer good")
	w = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-1", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.AddCookie(&http.Cookie{Name: AuthCookie, Value: "good"})
	w = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-1", w.Body.String())
}

func TestAuthDisabledInjectsSystemUser(t *testing.T) {
	r := newEngine(AuthRequired(stubVerifier{}, false))

	w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "system", w.Body.String())
}

func TestOperatorRequired(t *testing.T) {
	r := newEngine(OperatorRequired("k3y"))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(OperatorKeyHeader, "k3y")
	assert.Equal(t, http.StatusOK, serve(r, req).Code)

	locked := newEngine(OperatorRequired(""))
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(OperatorKeyHeader, "")
	assert.Equal(t, http.StatusUnauthorized, serve(locked, req).Code)
}

func TestRequestIDKeepsCallerValue(t *testing.T) {
	r := newEngine()

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	assert.Equal(t, "abc-123", serve(r, req).Header().Get(RequestIDHeader))

	w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
}
