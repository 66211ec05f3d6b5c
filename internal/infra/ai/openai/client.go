package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/stillwater-app/stillwater/internal/domain/analyses"
	"github.com/stillwater-app/stillwater/internal/infra/ai/prompt"
)

const maxTokens = 2048

const (
	maxAttempts    = 3
	initialBackoff = 1 * time.Second
)

// completer is the slice of the provider client the engine needs; lets tests
// swap the transport out entirely.
type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Client struct {
	api    completer
	apiKey string
	Model  string

	// sleep is the backoff delay between attempts, replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(apiKey, model string) *Client {
	c := &Client{apiKey: apiKey, Model: model, sleep: ctxSleep}
	if apiKey != "" {
		c.api = openai.NewClient(apiKey)
	}
	return c
}

// CheckCredential reports whether a provider credential is configured. It
// never touches the network.
func (c *Client) CheckCredential() error {
	if strings.TrimSpace(c.apiKey) == "" {
		return analyses.ErrMissingAPIKey
	}
	return nil
}

// Generate sends the prepared corpus to the provider and returns the raw
// model text. Retryable failures (rate limits, 5xx, transport errors) are
// retried with exponential backoff up to the attempt ceiling; auth failures
// and other client errors fail immediately.
func (c *Client) Generate(ctx context.Context, req analyses.GenerateRequest) (string, error) {
	if err := c.CheckCredential(); err != nil {
		return "", err
	}
	if req.DropCount < analyses.RequiredDrops {
		return "", fmt.Errorf("%w: got %d drops, need %d", analyses.ErrInsufficientData, req.DropCount, analyses.RequiredDrops)
	}

	model := c.Model
	if model == "" {
		model = openai.GPT4o
	}
	creq := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: prompt.GetUserPrompt(req.Corpus, req.DropCount)},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		creq.MaxCompletionTokens = maxTokens
	} else {
		creq.MaxTokens = maxTokens
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			// 1s, then 2s
			delay := initialBackoff << (attempt - 2)
			if err := c.sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		resp, err := c.api.CreateChatCompletion(ctx, creq)
		if err != nil {
			if !retryable(err) {
				if isAuthError(err) {
					return "", fmt.Errorf("%w: %v", analyses.ErrProviderAuth, err)
				}
				return "", fmt.Errorf("chat completion failed: %w", err)
			}
			lastErr = err
			continue
		}

		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return "", analyses.ErrEmptyResponse
		}
		return resp.Choices[0].Message.Content, nil
	}

	return "", &analyses.RetriesExhaustedError{Attempts: maxAttempts, Last: lastErr}
}

// retryable classifies a provider failure. Rate limits, server errors and
// transport-level failures are worth another attempt; any other HTTP client
// error is not.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return true
		}
		return apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return true
		}
		return reqErr.HTTPStatusCode >= 500 || reqErr.HTTPStatusCode == 0
	}
	// timeouts, connection resets, DNS failures
	return true
}

func isAuthError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusUnauthorized || reqErr.HTTPStatusCode == http.StatusForbidden
	}
	return false
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
