package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperjump/shoel/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIProvider_Generate(t *testing.T) {
	var gotPrompt, gotModel, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotModel = body.Model
		if len(body.Messages) > 0 {
			gotPrompt = body.Messages[0].Content
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"שלום"},"finish_reason":"stop"}],"usage":{"total_tokens":3}}`)
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{Name: "groq", APIKey: "k", Model: "llama", BaseURL: srv.URL + "/v1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "groq", p.Name())

	text, err := p.Generate(context.Background(), "מה?")
	require.NoError(t, err)
	assert.Equal(t, "שלום", text)
	assert.Equal(t, "מה?", gotPrompt)
	assert.Equal(t, "llama", gotModel)
	assert.Equal(t, "Bearer k", gotAuth)
}

func TestOpenAIProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{Name: "groq", APIKey: "k", Model: "llama", BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), "prompt")
	assert.Error(t, err)
}

func TestOpenAIProvider_Validation(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{Name: "groq", Model: "m"}, nil)
	assert.Error(t, err)
	_, err = NewOpenAIProvider(OpenAIConfig{Name: "groq", APIKey: "k"}, nil)
	assert.Error(t, err)
}

func TestGeminiProvider_Generate(t *testing.T) {
	var gotPath, gotKey, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		if gotKey == "" {
			gotKey = r.Header.Get("X-Goog-Api-Key")
		}
		var body struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Contents) > 0 && len(body.Contents[0].Parts) > 0 {
			gotText = body.Contents[0].Parts[0].Text
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"חלק א "},{"text":"חלק ב"}]},"finishReason":"STOP"}]}`)
	}))
	defer srv.Close()

	p, err := NewGeminiProvider(context.Background(), GeminiConfig{APIKey: "secret", Model: "gemini-test", Endpoint: srv.URL}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())

	text, err := p.Generate(context.Background(), "שאלה")
	require.NoError(t, err)
	assert.Equal(t, "חלק א חלק ב", text)
	assert.True(t, strings.HasSuffix(gotPath, "models/gemini-test:generateContent"), gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "שאלה", gotText)
}

func TestGeminiProvider_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`)
	}))
	defer srv.Close()

	p, err := NewGeminiProvider(context.Background(), GeminiConfig{APIKey: "secret", Endpoint: srv.URL}, nil)
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), "prompt")
	assert.ErrorContains(t, err, "SAFETY")
}

func TestNewFromConfig(t *testing.T) {
	t.Setenv("SHOEL_TEST_GEMINI_KEY", "g")
	t.Setenv("SHOEL_TEST_GROQ_KEY", "")
	cfg := config.GenerationConfig{
		TimeoutSeconds: 5,
		Providers: []config.ProviderConfig{
			{Name: "gemini", Type: config.ProviderGemini, Model: "gemini-1.5-flash", APIKeyEnv: "SHOEL_TEST_GEMINI_KEY"},
			{Name: "groq", Type: config.ProviderOpenAI, Model: "llama", APIKeyEnv: "SHOEL_TEST_GROQ_KEY"},
		},
	}
	f, err := NewFromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"gemini"}, f.Providers())

	cfg.Providers = append(cfg.Providers, config.ProviderConfig{Name: "odd", Type: "odd", APIKeyEnv: "SHOEL_TEST_GEMINI_KEY"})
	_, err = NewFromConfig(context.Background(), cfg, nil)
	assert.Error(t, err)
}
