package services_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speaktoheaven/logger"
	"speaktoheaven/models"
	"speaktoheaven/services"
)

func TestHandoffAlertPostsToSlack(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			got <- body["text"]
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := services.NewAlertNotifier(logger.Nop(), services.AlertConfig{SlackWebhook: srv.URL})
	n.HandoffMessage(context.Background(),
		models.User{ID: "u-1"},
		models.Persona{ID: "ruth", Name: "Ruth"},
		models.Takeover{OperatorName: "alice"},
		models.Message{Body: models.EncodeBody(models.PayloadImage, "https://img.example/1.png"), CreatedAt: time.Now()},
	)

	select {
	case text := <-got:
		assert.Contains(t, text, "Message waiting for alice")
		assert.Contains(t, text, "Persona: Ruth")
		assert.Contains(t, text, "[image] https://img.example/1.png")
	case <-time.After(2 * time.Second):
		t.Fatal("slack webhook not called")
	}
}

func TestSlackClientReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := services.NewSlackClient(logger.Nop(), srv.URL).Post(context.Background(), "hi")
	require.Error(t, err)

	var nilClient *services.SlackClient
	assert.NoError(t, nilClient.Post(context.Background(), "hi"))
}
