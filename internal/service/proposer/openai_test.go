package proposer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIBackend_Generate(t *testing.T) {
	var got responsesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/responses", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "completed",
			"output": [
				{"type": "reasoning", "content": []},
				{"type": "message", "role": "assistant", "content": [
					{"type": "output_text", "text": "{\"actions\":[]}"}
				]}
			]
		}`))
	}))
	defer srv.Close()

	b := NewOpenAIBackend("sk-test", srv.URL+"/")
	out, err := b.Generate(context.Background(), Request{
		Model:   "gpt-5.3-codex",
		Context: Payload{Objective: "tidy", ContextScope: "dashboard"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"actions":[]}`, out)

	assert.Equal(t, "gpt-5.3-codex", got.Model)
	require.Len(t, got.Input, 2)
	assert.Equal(t, "system", got.Input[0].Role)
	assert.Equal(t, "user", got.Input[1].Role)
	assert.JSONEq(t, `{"objective":"tidy","contextScope":"dashboard","entries":null,"syncQueue":null,"shareLinks":null}`, got.Input[1].Content)
	assert.Equal(t, maxOutputTokens, got.MaxOutputTokens)
	assert.Equal(t, "json_object", got.Text.Format.Type)
}

func TestOpenAIBackend_ErrorResponses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"api error", http.StatusUnauthorized, `{"error":{"message":"bad key","code":"invalid_api_key"}}`},
		{"non-200 without error body", http.StatusBadGateway, `{}`},
		{"not json", http.StatusOK, `<html>`},
		{"incomplete", http.StatusOK, `{"status":"incomplete","output":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewOpenAIBackend("k", srv.URL).Generate(context.Background(), Request{Model: "m"})
			assert.Error(t, err)
		})
	}
}

func TestNewOpenAIBackend_DefaultBaseURL(t *testing.T) {
	assert.Equal(t, DefaultOpenAIBaseURL, NewOpenAIBackend("k", "").baseURL)
}
