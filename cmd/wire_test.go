package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speaktoheaven/config"
	"speaktoheaven/handlers"
	"speaktoheaven/logger"
)

func memoryConfig() config.Config {
	return config.Config{
		StorageDriver: config.StorageMemory,
		JWTSecret:     "test-secret",
		FreeQuota:     3,
		HistoryLimit:  20,
		Completion:    config.CompletionConfig{Provider: config.ProviderEcho},
	}
}

func TestWireAppInMemory(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a, err := wireApp(context.Background(), memoryConfig(), config.Features{AuthEnabled: true, OperatorEnabled: true}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.NotNil(t, a.handlers)
	require.NotNil(t, a.sweeper)

	r := handlers.NewRouter(a.handlers, handlers.RouterConfig{OperatorAPIKey: "op"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/personas", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "persona")
}

func TestWireAppBillingNeedsStripeKey(t *testing.T) {
	_, err := wireApp(context.Background(), memoryConfig(), config.Features{BillingEnabled: true}, logger.Nop())
	assert.ErrorContains(t, err, "STRIPE_SECRET_KEY")
}
