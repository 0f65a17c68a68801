package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const geminiGroundedAnswer = `{
	"candidates": [{
		"content": {"role": "model", "parts": [{"text": " {\"topics\":[\"songkran\"]} "}]},
		"finishReason": "STOP",
		"groundingMetadata": {
			"groundingChunks": [
				{"web": {"uri": "https://example.com/songkran", "title": "Songkran 2026"}},
				{"web": {"uri": "https://example.com/songkran", "title": "Songkran 2026 (dup)"}},
				{"web": {"uri": "", "title": "no link"}},
				{"web": {"uri": "https://news.example.org/ev", "title": "EV sales"}}
			]
		}
	}],
	"usageMetadata": {"promptTokenCount": 21, "candidatesTokenCount": 7, "totalTokenCount": 28}
}`

// geminiServer answers every generateContent call with answer and hands the
// decoded request body to the test.
func geminiServer(t *testing.T, answer string) (*httptest.Server, <-chan map[string]interface{}) {
	t.Helper()
	bodies := make(chan map[string]interface{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1beta/models/gemini-2.5-flash:generateContent"), r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies <- body

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(answer))
	}))
	t.Cleanup(srv.Close)
	return srv, bodies
}

func newTestGemini(t *testing.T, baseURL string) *GeminiProvider {
	t.Helper()
	p, err := NewGeminiProvider(context.Background(), Config{APIKey: "test-key", BaseURL: baseURL, MaxTokens: 128})
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())
	assert.Equal(t, "gemini-2.5-flash", p.Model())
	return p
}

func TestGeminiProviderJSONMode(t *testing.T) {
	srv, bodies := geminiServer(t, `{
		"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"capabilities\":[\"metrics\"]}"}]}, "finishReason": "STOP"}],
		"usageMetadata": {"promptTokenCount": 9, "candidatesTokenCount": 4}
	}`)
	p := newTestGemini(t, srv.URL)

	png := []byte{0x89, 'P', 'N', 'G'}
	resp, err := p.Generate(context.Background(), Request{
		System: "classify the question",
		Prompt: "how is campaign 12 doing",
		JSON:   true,
		Images: []Image{{MIMEType: "image/png", Data: png}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"capabilities":["metrics"]}`, resp.Text)
	assert.Equal(t, Usage{InputTokens: 9, OutputTokens: 4}, resp.Usage)
	assert.Empty(t, resp.Citations)

	body := <-bodies
	gen := body["generationConfig"].(map[string]interface{})
	assert.Equal(t, "application/json", gen["responseMimeType"])
	assert.EqualValues(t, 128, gen["maxOutputTokens"])
	assert.NotContains(t, body, "tools")

	system := body["systemInstruction"].(map[string]interface{})["parts"].([]interface{})
	assert.Equal(t, "classify the question", system[0].(map[string]interface{})["text"])

	contents := body["contents"].([]interface{})
	require.Len(t, contents, 1)
	parts := contents[0].(map[string]interface{})["parts"].([]interface{})
	require.Len(t, parts, 2)
	assert.Equal(t, "how is campaign 12 doing", parts[0].(map[string]interface{})["text"])
	inline := parts[1].(map[string]interface{})["inlineData"].(map[string]interface{})
	assert.Equal(t, "image/png", inline["mimeType"])
	assert.Equal(t, base64.StdEncoding.EncodeToString(png), inline["data"])
}

func TestGeminiProviderSearchGrounding(t *testing.T) {
	srv, bodies := geminiServer(t, geminiGroundedAnswer)
	p := newTestGemini(t, srv.URL)

	resp, err := p.Generate(context.Background(), Request{Prompt: "what is trending in Thailand", JSON: true, Search: true, MaxTokens: 512})
	require.NoError(t, err)
	assert.Equal(t, `{"topics":["songkran"]}`, resp.Text)
	assert.Equal(t, Usage{InputTokens: 21, OutputTokens: 7}, resp.Usage)
	assert.Equal(t, []Citation{
		{Title: "Songkran 2026", URL: "https://example.com/songkran"},
		{Title: "EV sales", URL: "https://news.example.org/ev"},
	}, resp.Citations)

	body := <-bodies
	tools := body["tools"].([]interface{})
	require.Len(t, tools, 1)
	assert.Contains(t, tools[0].(map[string]interface{}), "googleSearch")

	// the search tool and a JSON response type cannot be combined
	gen := body["generationConfig"].(map[string]interface{})
	assert.NotContains(t, gen, "responseMimeType")
	assert.EqualValues(t, 512, gen["maxOutputTokens"])
	assert.NotContains(t, body, "systemInstruction")
}

func TestGeminiProviderSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"code": 400, "message": "API key not valid", "status": "INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()
	p := newTestGemini(t, srv.URL)

	_, err := p.Generate(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini generate")
}

func TestNewGeminiProviderRequiresKey(t *testing.T) {
	_, err := NewGeminiProvider(context.Background(), Config{})
	assert.Error(t, err)
}
