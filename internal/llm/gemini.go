package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/models"

// GeminiClient talks to the Gemini generateContent API and exposes it as a ChatClient.
type GeminiClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	retry      retryPolicy
}

// NewGeminiClient constructs a Gemini client.
func NewGeminiClient(apiKey string, opts ...func(*GeminiClient)) *GeminiClient {
	c := &GeminiClient{
		endpoint: defaultGeminiEndpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		retry: defaultRetry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithGeminiEndpoint overrides the models endpoint.
func WithGeminiEndpoint(endpoint string) func(*GeminiClient) {
	return func(c *GeminiClient) {
		if endpoint != "" {
			c.endpoint = strings.TrimRight(endpoint, "/")
		}
	}
}

// WithGeminiHTTPClient overrides the internal HTTP client.
func WithGeminiHTTPClient(hc *http.Client) func(*GeminiClient) {
	return func(c *GeminiClient) {
		c.httpClient = hc
	}
}

// WithGeminiRetry configures retries of transient failures.
func WithGeminiRetry(attempts int, initial, max time.Duration) func(*GeminiClient) {
	return func(c *GeminiClient) {
		c.retry = retryPolicy{attempts: attempts, initial: initial, max: max}
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// ChatCompletion maps chat messages onto generateContent: system messages become the system
// instruction, assistant turns use the "model" role.
func (c *GeminiClient) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if req.Model == "" {
		return nil, fmt.Errorf("llm: gemini request requires a model")
	}

	payload := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
			TopP:            req.TopP,
		},
	}
	var system []string
	for _, m := range req.Messages {
		switch strings.ToLower(m.Role) {
		case "system":
			system = append(system, m.Content)
		case "assistant", "model":
			payload.Contents = append(payload.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			payload.Contents = append(payload.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: strings.Join(system, "\n\n")}}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal gemini request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/%s:generateContent?key=%s", c.endpoint, url.PathEscape(req.Model), url.QueryEscape(c.apiKey))

	var decoded geminiResponse
	err = c.retry.do(ctx, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("llm: create gemini request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("llm: gemini request failed: %w", redactKey(err, c.apiKey))
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
		}

		decoded = geminiResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return &DecodeError{Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &ChatCompletionResponse{}
	for i, cand := range decoded.Candidates {
		var text strings.Builder
		for _, part := range cand.Content.Parts {
			text.WriteString(part.Text)
		}
		choice := Choice{FinishReason: cand.FinishReason, Index: i}
		choice.Message.Role = "assistant"
		choice.Message.Content = text.String()
		out.Choices = append(out.Choices, choice)
	}
	return out, nil
}

// redactKey strips the API key from transport errors, which echo the request URL.
func redactKey(err error, key string) error {
	msg := err.Error()
	if key == "" || (!strings.Contains(msg, key) && !strings.Contains(msg, url.QueryEscape(key))) {
		return err
	}
	msg = strings.ReplaceAll(msg, url.QueryEscape(key), "REDACTED")
	return errors.New(strings.ReplaceAll(msg, key, "REDACTED"))
}
