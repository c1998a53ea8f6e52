package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultOpenAIBaseURL is the public OpenAI API root.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// openAIClient is the concrete Completer backed by an OpenAI-compatible
// /chat/completions endpoint (OpenAI itself, DeepSeek, OpenRouter, ...).
type openAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOpenAIClient returns a Completer that calls an OpenAI-compatible API.
//   - apiKey:  your OPENAI_API_KEY; may be empty, calls then fail with ErrMissingAPIKey
//   - baseURL: e.g. "https://api.openai.com/v1"
//   - model:   e.g. "gpt-4o-mini"
//
// A nil httpClient gets a client with a 60s timeout.
func NewOpenAIClient(httpClient *http.Client, apiKey, baseURL, model string) Completer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	return &openAIClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: httpClient,
	}
}

// ─── OPENAI-COMPATIBLE API SHAPES ────────────────────────────────────────────

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// ─── IMPLEMENTATION ───────────────────────────────────────────────────────────

// Complete sends persona and task as a system/user message pair and returns
// the content of the first choice unmodified.
func (c *openAIClient) Complete(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" {
		return "", transportf("openai: %w", ErrMissingAPIKey)
	}

	return c.call(ctx, openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: req.Persona},
			{Role: "user", Content: req.Task},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
}

// call sends one request to the chat completions endpoint and returns the
// text content of the first choice.
func (c *openAIClient) call(ctx context.Context, reqBody openAIRequest) (string, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", transportf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions",
		bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return "", transportf("openai: build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportf("openai: http request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB cap
	if err != nil {
		return "", transportf("openai: read response: %w", err)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", transportf("openai: unexpected status %d, unmarshal response: %w", resp.StatusCode, err)
	}

	if parsed.Error != nil {
		return "", transportf("openai: API error %s (status %d): %s", parsed.Error.Type, resp.StatusCode, parsed.Error.Message)
	}

	if resp.StatusCode != http.StatusOK {
		return "", transportf("openai: unexpected status %d: %.200s", resp.StatusCode, string(respBytes))
	}

	if len(parsed.Choices) == 0 {
		return "", transportf("openai: no choices in response")
	}

	return parsed.Choices[0].Message.Content, nil
}
