package extract

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChatClient(t *testing.T, url string, timeout time.Duration) *ChatClient {
	t.Helper()
	c, err := NewChatClient(ChatConfig{APIKey: "test-key", URL: url, Timeout: timeout})
	require.NoError(t, err)
	return c
}

func TestNewChatClient_MissingKey(t *testing.T) {
	_, err := NewChatClient(ChatConfig{APIKey: "   "})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Equal(t, KindConfiguration, KindOf(err))
}

func TestNewChatClient_Defaults(t *testing.T) {
	c, err := NewChatClient(ChatConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultChatURL, c.url)
	assert.Equal(t, DefaultChatModel, c.Model())
	assert.Equal(t, DefaultAPIVersion, c.apiVersion)
	assert.Equal(t, DefaultMaxTokens, c.maxTokens)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
}

func TestChatClient_Complete_RequestShape(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		assert.Equal(t, DefaultAPIVersion, r.Header.Get("Anthropic-Version"))

		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"[]"}}]}`)
	}))
	defer srv.Close()

	c := newTestChatClient(t, srv.URL, time.Second)
	out, err := c.Complete(context.Background(), BuildPrompt("coffee 3 EUR"))
	require.NoError(t, err)
	assert.Equal(t, "[]", out)

	assert.Equal(t, DefaultChatModel, gotBody["model"])
	assert.Equal(t, float64(0), gotBody["temperature"])
	assert.Equal(t, float64(DefaultMaxTokens), gotBody["max_tokens"])
	msgs, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "coffee 3 EUR", msgs[1].(map[string]any)["content"])
}

func TestChatClient_Complete_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded"}}`)
	}))
	defer srv.Close()

	_, err := newTestChatClient(t, srv.URL, time.Second).Complete(context.Background(), BuildPrompt("x"))

	var xe *Error
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, KindUpstream, xe.Kind)
	assert.Equal(t, http.StatusBadGateway, xe.Status)
	assert.Equal(t, "overloaded", xe.Message)
	assert.False(t, xe.Timeout)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestChatClient_Complete_Non2xxWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "nope")
	}))
	defer srv.Close()

	_, err := newTestChatClient(t, srv.URL, time.Second).Complete(context.Background(), BuildPrompt("x"))

	var xe *Error
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, http.StatusUnauthorized, xe.Status)
	assert.Equal(t, "Unauthorized", xe.Message)
	assert.NotContains(t, err.Error(), "nope")
}

func TestChatClient_Complete_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestChatClient(t, srv.URL, 50*time.Millisecond).Complete(context.Background(), BuildPrompt("x"))

	require.Error(t, err)
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.True(t, IsTimeout(err))
}

func TestChatClient_Complete_NoContent(t *testing.T) {
	bodies := map[string]string{
		"no choices":      `{"choices":[]}`,
		"missing content": `{"choices":[{"message":{}}]}`,
		"null content":    `{"choices":[{"message":{"content":null}}]}`,
		"array content":   `{"choices":[{"message":{"content":[{"type":"text","text":"[]"}]}}]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body)
			}))
			defer srv.Close()

			_, err := newTestChatClient(t, srv.URL, time.Second).Complete(context.Background(), BuildPrompt("x"))
			assert.Equal(t, KindUpstream, KindOf(err))
			assert.ErrorIs(t, err, ErrNoContent)
			assert.Contains(t, err.Error(), "no content returned")
		})
	}
}

func TestChatClient_Complete_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestChatClient(t, url, time.Second).Complete(context.Background(), BuildPrompt("x"))
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.False(t, IsTimeout(err))
}
