package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloudSenderSend(t *testing.T) {
	var (
		path string
		auth string
		body sendRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.OUT"}]}`))
	}))
	defer srv.Close()

	s := NewCloudSender(srv.URL+"/v18.0/", "123", "token", 5*time.Second)
	ok := s.Send(context.Background(), OutgoingMessage{To: "4915112345", Text: "hello", CorrelationID: "c1"})

	require.True(t, ok)
	assert.Equal(t, "/v18.0/123/messages", path)
	assert.Equal(t, "Bearer token", auth)
	assert.Equal(t, "whatsapp", body.MessagingProduct)
	assert.Equal(t, "text", body.Type)
	assert.Equal(t, "4915112345", body.To)
	assert.Equal(t, "hello", body.Text.Body)
}

func TestCloudSenderReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid token"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewCloudSender(srv.URL, "123", "bad", 5*time.Second)
	assert.False(t, s.Send(context.Background(), OutgoingMessage{To: "1", Text: "x"}))

	srv.Close()
	assert.False(t, s.Send(context.Background(), OutgoingMessage{To: "1", Text: "x"}))
}
