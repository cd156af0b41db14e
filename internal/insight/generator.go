package insight

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"campaignpulse/internal/llm"
)

// Failure kinds of a ProviderError.
const (
	KindAuth      = "auth"
	KindNetwork   = "network"
	KindMalformed = "malformed"
	KindEmpty     = "empty"
)

// ProviderError is a failed text generation. It never poisons the cache: the same key may be
// requested again.
type ProviderError struct {
	Kind string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("insight: provider %s failure: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Generator produces free text for a prompt. Implementations may block on network I/O.
type Generator interface {
	Generate(ctx context.Context, style Style, messages []llm.Message) (string, error)
}

// ChatGenerator adapts an llm.ChatClient to Generator.
type ChatGenerator struct {
	Client      llm.ChatClient
	Model       string
	Temperature float64
	MaxTokens   int
}

// Generate sends messages to the chat client. A style temperature overrides the default.
func (g ChatGenerator) Generate(ctx context.Context, style Style, messages []llm.Message) (string, error) {
	if g.Client == nil || g.Model == "" {
		return "", &ProviderError{Kind: KindAuth, Err: fmt.Errorf("text generator misconfigured")}
	}
	temperature := g.Temperature
	if style.Temperature > 0 {
		temperature = style.Temperature
	}
	resp, err := g.Client.ChatCompletion(ctx, llm.ChatCompletionRequest{
		Model:       g.Model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   g.MaxTokens,
		TopP:        0.9,
	})
	if err != nil {
		return "", classify(err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &ProviderError{Kind: KindEmpty, Err: fmt.Errorf("response carried no text")}
	}
	return text, nil
}

func classify(err error) error {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return err
	}
	if errors.Is(err, llm.ErrMissingAPIKey) {
		return &ProviderError{Kind: KindAuth, Err: err}
	}
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &ProviderError{Kind: KindAuth, Err: err}
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return &ProviderError{Kind: KindMalformed, Err: err}
		}
		return &ProviderError{Kind: KindNetwork, Err: err}
	}
	var decodeErr *llm.DecodeError
	if errors.As(err, &decodeErr) {
		return &ProviderError{Kind: KindMalformed, Err: err}
	}
	return &ProviderError{Kind: KindNetwork, Err: err}
}
