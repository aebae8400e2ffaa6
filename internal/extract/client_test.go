package extract

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

func fakeCompletionServer(t *testing.T, content string, capture *map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		if capture != nil {
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			*capture = body
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"role": "assistant", "content": content}},
			},
		})
	}))
}

func TestComplete_ReturnsResponseContent(t *testing.T) {
	var captured map[string]interface{}
	srv := fakeCompletionServer(t, `{"entities":[],"relations":[]}`, &captured)
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", "test-model", 5*time.Second)
	content, err := c.Complete(context.Background(), "system text", "user text")

	require.NoError(t, err)
	assert.Equal(t, `{"entities":[],"relations":[]}`, content)
	assert.Equal(t, "test-model", captured["model"])
	assert.InDelta(t, extractionTemperature, captured["temperature"], 0.001)
}

func TestComplete_BaseURLAlreadyHasV1(t *testing.T) {
	srv := fakeCompletionServer(t, "ok", nil)
	defer srv.Close()

	c := NewClient(srv.URL+"/v1", "test-key", "test-model", 5*time.Second)
	content, err := c.Complete(context.Background(), "system", "user")

	require.NoError(t, err, "path must not become /v1/v1/chat/completions")
	assert.Equal(t, "ok", content)
}

func TestComplete_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", "test-model", 5*time.Second)
	_, err := c.Complete(context.Background(), "system", "user")
	assert.Error(t, err)
}

func TestComplete_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", "test-model", 5*time.Second)
	_, err := c.Complete(context.Background(), "system", "user")
	assert.Error(t, err)
}
