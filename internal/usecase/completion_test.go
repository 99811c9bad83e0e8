package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"catalog-assistant/internal/domain"
	"catalog-assistant/internal/integrations/openai"
)

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func newTestCompletion(t *testing.T, llm LLMClient, opts ...CompletionOption) (*CompletionClient, *recordedSleeps) {
	t.Helper()
	sleeps := &recordedSleeps{}
	opts = append([]CompletionOption{WithSleeper(sleeps.sleep)}, opts...)
	c, err := NewCompletionClient(llm, staticModel("llama-3.3-70b-versatile"), opts...)
	require.NoError(t, err)
	return c, sleeps
}

func rateLimited() error {
	return fmt.Errorf("openai: request failed: %w", &openai.HTTPStatusError{StatusCode: http.StatusTooManyRequests})
}

func TestNewCompletionClient_ValidatesDependencies(t *testing.T) {
	_, err := NewCompletionClient(nil, staticModel("m"))
	require.Error(t, err)
	_, err = NewCompletionClient(&mockLLM{}, nil)
	require.Error(t, err)
}

func TestComplete_BuildsRoleOrderedMessages(t *testing.T) {
	llm := &mockLLM{responses: []chatResponse{{answer: "La pantalla sale $40."}}}
	c, _ := newTestCompletion(t, llm)

	history := []domain.Turn{
		{Role: domain.RoleUser, Content: "hola"},
		{Role: domain.RoleAssistant, Content: "¡Hola! ¿En qué te ayudo?"},
	}
	out, err := c.Complete(context.Background(), "system prompt", history, "precio pantalla")
	require.NoError(t, err)
	require.Equal(t, "La pantalla sale $40.", out)

	require.Len(t, llm.calls, 1)
	call := llm.calls[0]
	require.Equal(t, "llama-3.3-70b-versatile", call.model)
	require.Equal(t, DefaultCompletionParams, call.params)
	require.Equal(t, []domain.ChatMessage{
		{Role: "system", Content: "system prompt"},
		{Role: "user", Content: "hola"},
		{Role: "assistant", Content: "¡Hola! ¿En qué te ayudo?"},
		{Role: "user", Content: "precio pantalla"},
	}, call.messages)
}

func TestComplete_RetriesRateLimitWithLinearBackoff(t *testing.T) {
	llm := &mockLLM{responses: []chatResponse{
		{err: rateLimited()},
		{err: rateLimited()},
		{answer: "third time lucky"},
	}}
	c, sleeps := newTestCompletion(t, llm)

	out, err := c.Complete(context.Background(), "sys", nil, "hola")
	require.NoError(t, err)
	require.Equal(t, "third time lucky", out)
	require.Len(t, llm.calls, 3)
	require.Equal(t, []time.Duration{3 * time.Second, 6 * time.Second}, sleeps.delays)

	var total time.Duration
	for _, d := range sleeps.delays {
		total += d
	}
	require.Equal(t, 9*time.Second, total)
}

func TestComplete_RateLimitExhausted(t *testing.T) {
	llm := &mockLLM{responses: []chatResponse{{err: rateLimited()}}}
	c, sleeps := newTestCompletion(t, llm)

	_, err := c.Complete(context.Background(), "sys", nil, "hola")
	require.Error(t, err)
	require.True(t, isRateLimited(err))
	require.Len(t, llm.calls, 3)
	require.Len(t, sleeps.delays, 2)
	uerr := classifyCompletionError(err)
	require.Equal(t, ErrorUpstream, uerr.Code)
	require.Equal(t, "llm_rate_limit_exhausted", uerr.Reason)
}

func TestComplete_RetriesRateLimitReportedOnlyInMessage(t *testing.T) {
	llm := &mockLLM{responses: []chatResponse{
		{err: errors.New("proxy: upstream returned 429 Too Many Requests")},
		{answer: "ok"},
	}}
	c, sleeps := newTestCompletion(t, llm)

	out, err := c.Complete(context.Background(), "sys", nil, "hola")
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, []time.Duration{3 * time.Second}, sleeps.delays)
}

func TestIsRateLimited_StatusWinsOverMessage(t *testing.T) {
	err := &openai.HTTPStatusError{StatusCode: http.StatusInternalServerError, Body: "quota 429 exceeded"}
	require.False(t, isRateLimited(err))
	require.False(t, isRateLimited(errors.New("connection reset")))
}

func TestComplete_OtherErrorsAreNotRetried(t *testing.T) {
	llm := &mockLLM{responses: []chatResponse{{err: &openai.HTTPStatusError{StatusCode: http.StatusInternalServerError}}}}
	c, sleeps := newTestCompletion(t, llm)

	_, err := c.Complete(context.Background(), "sys", nil, "hola")
	require.Error(t, err)
	require.Len(t, llm.calls, 1)
	require.Empty(t, sleeps.delays)
	require.Equal(t, ErrorUpstream, classifyCompletionError(err).Code)
}

func TestComplete_MissingAPIKeyIsConfigurationError(t *testing.T) {
	llm := &mockLLM{responses: []chatResponse{{err: fmt.Errorf("%w: API token is empty", openai.ErrMissingAPIKey)}}}
	c, sleeps := newTestCompletion(t, llm)

	_, err := c.Complete(context.Background(), "sys", nil, "hola")
	require.ErrorIs(t, err, domain.ErrMissingCredential)
	require.Len(t, llm.calls, 1)
	require.Empty(t, sleeps.delays)

	uerr := classifyCompletionError(err)
	require.Equal(t, ErrorConfiguration, uerr.Code)
	require.Equal(t, "missing_api_key", uerr.Reason)
}

func TestComplete_SleepCancellationStopsRetries(t *testing.T) {
	llm := &mockLLM{responses: []chatResponse{{err: rateLimited()}}}
	c, err := NewCompletionClient(llm, staticModel("m"), WithSleeper(func(context.Context, time.Duration) error {
		return context.Canceled
	}))
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "sys", nil, "hola")
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, llm.calls, 1)
}

func TestComplete_LimiterGatesAttempts(t *testing.T) {
	llm := &mockLLM{responses: []chatResponse{{err: rateLimited()}, {answer: "ok"}}}
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	c, _ := newTestCompletion(t, llm, WithLimiter(limiter))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Complete(ctx, "sys", nil, "hola")
	require.Error(t, err)
	require.False(t, isRateLimited(err))
	require.Len(t, llm.calls, 1, "second attempt must wait for the limiter")
}

func TestComplete_CustomRetryBudget(t *testing.T) {
	llm := &mockLLM{responses: []chatResponse{{err: rateLimited()}}}
	c, sleeps := newTestCompletion(t, llm, WithRetry(1, time.Second))

	_, err := c.Complete(context.Background(), "sys", nil, "hola")
	require.Error(t, err)
	require.Len(t, llm.calls, 1)
	require.Empty(t, sleeps.delays)
}

func TestClassifyCompletionError_KeepsUsecaseErrors(t *testing.T) {
	orig := newError(ErrorInternal, "boom", errors.New("x"))
	require.Same(t, orig, classifyCompletionError(fmt.Errorf("wrapped: %w", orig)))
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), 0))
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
