package genai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/lumen-ed/lumen-api/pkg/errors"
)

func TestClientCompleteJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"title\":\"Fractions Quiz\"}"}}]}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "test-key", Model: "test-model", Timeout: time.Second}, nil)

	var dest struct {
		Title string `json:"title"`
	}
	err := client.CompleteJSON(context.Background(), "system", "user", &dest)
	require.NoError(t, err)
	assert.Equal(t, "Fractions Quiz", dest.Title)
}

func TestClientStripsMarkdownFences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"` + "```json\\n{\\\"ok\\\":true}\\n```" + `"}}]}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Timeout: time.Second}, nil)

	var dest struct {
		OK bool `json:"ok"`
	}
	err := client.CompleteJSON(context.Background(), "system", "user", &dest)
	require.NoError(t, err)
	assert.True(t, dest.OK)
}

func TestClientTimeoutIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Timeout: 20 * time.Millisecond}, nil)

	_, err := client.Complete(context.Background(), "system", "user")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrProviderTimeout.Code, appErrors.FromError(err).Code)
	assert.True(t, appErrors.Retryable(err))
}

func TestClientMalformedResponseIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"not json at all"}}]}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Timeout: time.Second}, nil)

	var dest map[string]interface{}
	err := client.CompleteJSON(context.Background(), "system", "user", &dest)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrProviderResponse.Code, appErrors.FromError(err).Code)
	assert.True(t, appErrors.Retryable(err))
}
