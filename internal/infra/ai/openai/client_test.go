package openai

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stillwater-app/stillwater/internal/domain/analyses"
)

// fakeCompleter plays back a script of results, one per call.
type fakeCompleter struct {
	script  []error // nil entry means success
	content string
	calls   int
	lastReq openai.ChatCompletionRequest
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastReq = req
	idx := f.calls
	f.calls++
	if idx < len(f.script) && f.script[idx] != nil {
		return openai.ChatCompletionResponse{}, f.script[idx]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.content}},
		},
	}, nil
}

func testClient(fake *fakeCompleter, model string) (*Client, *[]time.Duration) {
	var slept []time.Duration
	c := &Client{
		api:    fake,
		apiKey: "sk-test",
		Model:  model,
		sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}
	return c, &slept
}

func genReq() analyses.GenerateRequest {
	return analyses.GenerateRequest{Corpus: "Entry 1\nsome text", DropCount: analyses.RequiredDrops}
}

func apiErr(status int) error {
	return &openai.APIError{HTTPStatusCode: status, Message: http.StatusText(status)}
}

func TestGenerate_success(t *testing.T) {
	fake := &fakeCompleter{content: "Summary: ok"}
	c, slept := testClient(fake, "gpt-4o")

	got, err := c.Generate(context.Background(), genReq())
	require.NoError(t, err)
	assert.Equal(t, "Summary: ok", got)
	assert.Equal(t, 1, fake.calls)
	assert.Empty(t, *slept)
}

func TestGenerate_retriesRateLimitThenSucceeds(t *testing.T) {
	fake := &fakeCompleter{
		script:  []error{apiErr(http.StatusTooManyRequests), apiErr(http.StatusServiceUnavailable), nil},
		content: "late but fine",
	}
	c, slept := testClient(fake, "gpt-4o")

	got, err := c.Generate(context.Background(), genReq())
	require.NoError(t, err)
	assert.Equal(t, "late but fine", got)
	assert.Equal(t, 3, fake.calls)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, *slept)
}

func TestGenerate_exhaustsRetries(t *testing.T) {
	fake := &fakeCompleter{
		script: []error{apiErr(500), apiErr(500), apiErr(500)},
	}
	c, _ := testClient(fake, "gpt-4o")

	_, err := c.Generate(context.Background(), genReq())
	var exhausted *analyses.RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Error(t, exhausted.Last)
	assert.Equal(t, 3, fake.calls)
}

func TestGenerate_authErrorFailsFast(t *testing.T) {
	fake := &fakeCompleter{script: []error{apiErr(http.StatusUnauthorized)}}
	c, slept := testClient(fake, "gpt-4o")

	_, err := c.Generate(context.Background(), genReq())
	require.ErrorIs(t, err, analyses.ErrProviderAuth)
	assert.Equal(t, 1, fake.calls)
	assert.Empty(t, *slept)
}

func TestGenerate_clientErrorFailsFast(t *testing.T) {
	fake := &fakeCompleter{script: []error{apiErr(http.StatusBadRequest)}}
	c, _ := testClient(fake, "gpt-4o")

	_, err := c.Generate(context.Background(), genReq())
	require.Error(t, err)
	assert.NotErrorIs(t, err, analyses.ErrProviderAuth)
	assert.Equal(t, 1, fake.calls)
}

func TestGenerate_transportErrorIsRetried(t *testing.T) {
	fake := &fakeCompleter{
		script:  []error{errors.New("connection reset"), nil},
		content: "recovered",
	}
	c, _ := testClient(fake, "gpt-4o")

	got, err := c.Generate(context.Background(), genReq())
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.Equal(t, 2, fake.calls)
}

func TestGenerate_emptyResponse(t *testing.T) {
	fake := &fakeCompleter{content: "   "}
	c, _ := testClient(fake, "gpt-4o")

	_, err := c.Generate(context.Background(), genReq())
	require.ErrorIs(t, err, analyses.ErrEmptyResponse)
	assert.Equal(t, 1, fake.calls)
}

func TestGenerate_missingKey(t *testing.T) {
	c := NewClient("", "gpt-4o")

	_, err := c.Generate(context.Background(), genReq())
	require.ErrorIs(t, err, analyses.ErrMissingAPIKey)
	require.ErrorIs(t, c.CheckCredential(), analyses.ErrMissingAPIKey)
}

func TestGenerate_insufficientDrops(t *testing.T) {
	fake := &fakeCompleter{content: "unused"}
	c, _ := testClient(fake, "gpt-4o")

	req := genReq()
	req.DropCount = analyses.RequiredDrops - 1
	_, err := c.Generate(context.Background(), req)
	require.ErrorIs(t, err, analyses.ErrInsufficientData)
	assert.Equal(t, 0, fake.calls)
}

func TestGenerate_tokenFieldPerModel(t *testing.T) {
	fake := &fakeCompleter{content: "ok"}
	c, _ := testClient(fake, "o3-mini")
	_, err := c.Generate(context.Background(), genReq())
	require.NoError(t, err)
	assert.Equal(t, maxTokens, fake.lastReq.MaxCompletionTokens)
	assert.Zero(t, fake.lastReq.MaxTokens)

	fake = &fakeCompleter{content: "ok"}
	c, _ = testClient(fake, "gpt-4o")
	_, err = c.Generate(context.Background(), genReq())
	require.NoError(t, err)
	assert.Equal(t, maxTokens, fake.lastReq.MaxTokens)
	assert.Zero(t, fake.lastReq.MaxCompletionTokens)
}

func TestGenerate_sleepHonorsContext(t *testing.T) {
	fake := &fakeCompleter{script: []error{apiErr(500), apiErr(500), apiErr(500)}}
	c := &Client{
		api:    fake,
		apiKey: "sk-test",
		sleep: func(ctx context.Context, _ time.Duration) error {
			return context.Canceled
		},
	}

	_, err := c.Generate(context.Background(), genReq())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, fake.calls)
}
