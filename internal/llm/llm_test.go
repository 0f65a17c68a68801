package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		err  bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"capabilities\": [\"metrics\"]}\n```", `{"capabilities": ["metrics"]}`, false},
		{"nested and braces in strings", `Sure: {"a":{"b":"}"},"c":"\"{"} trailing`, `{"a":{"b":"}"},"c":"\"{"}`, false},
		{"none", "no json here", "", true},
		{"unterminated", `{"a": {`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Tags []string `json:"capabilities"`
	}
	require.NoError(t, DecodeJSON("answer: {\"capabilities\":[\"trends\"]}", &v))
	assert.Equal(t, []string{"trends"}, v.Tags)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: "llama"})
	assert.Error(t, err)
}

func TestOpenAIProviderGenerate(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": " {\"ok\":true} "}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 11, "completion_tokens": 3, "total_tokens": 14}
		}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(Config{APIKey: "test", BaseURL: srv.URL, MaxTokens: 64})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, defaultOpenAIModel, p.Model())

	resp, err := p.Generate(context.Background(), Request{
		System: "classify",
		Prompt: "hello",
		JSON:   true,
		Images: []Image{{MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp.Text)
	assert.Equal(t, 11, resp.Usage.InputTokens)
	assert.Equal(t, 3, resp.Usage.OutputTokens)

	messages := got["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
	parts := messages[1].(map[string]interface{})["content"].([]interface{})
	require.Len(t, parts, 2)
	assert.Equal(t, "image_url", parts[1].(map[string]interface{})["type"])
	assert.Equal(t, "json_object", got["response_format"].(map[string]interface{})["type"])
}

func TestOpenAIProviderRejectsSearch(t *testing.T) {
	p, err := NewOpenAIProvider(Config{APIKey: "test"})
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), Request{Prompt: "x", Search: true})
	assert.ErrorIs(t, err, ErrUnsupported)
}
