package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"catalog-assistant/internal/domain"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffUnit = 3 * time.Second
)

// DefaultCompletionParams keeps answers short and close to the catalog context.
var DefaultCompletionParams = domain.CompletionParams{MaxTokens: 1024, Temperature: 0.2}

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage, p domain.CompletionParams) (string, error)
}

// ModelSource resolves the model name for each request.
type ModelSource interface {
	Settings(ctx context.Context) Settings
}

// CompletionClient sends one turn to the generative backend, retrying only
// when the backend reports rate limiting.
type CompletionClient struct {
	llm         LLMClient
	models      ModelSource
	params      domain.CompletionParams
	maxAttempts int
	backoffUnit time.Duration
	limiter     *rate.Limiter
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

type CompletionOption func(*CompletionClient)

func WithCompletionParams(p domain.CompletionParams) CompletionOption {
	return func(c *CompletionClient) {
		c.params = p
	}
}

// WithRetry sets the attempt budget and the linear backoff step.
func WithRetry(maxAttempts int, backoffUnit time.Duration) CompletionOption {
	return func(c *CompletionClient) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if backoffUnit >= 0 {
			c.backoffUnit = backoffUnit
		}
	}
}

// WithLimiter throttles every outbound attempt, retries included.
func WithLimiter(l *rate.Limiter) CompletionOption {
	return func(c *CompletionClient) {
		c.limiter = l
	}
}

func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) CompletionOption {
	return func(c *CompletionClient) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func WithCompletionLogger(l *slog.Logger) CompletionOption {
	return func(c *CompletionClient) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewCompletionClient(llm LLMClient, models ModelSource, opts ...CompletionOption) (*CompletionClient, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if models == nil {
		return nil, errors.New("usecase: model source must not be nil")
	}
	c := &CompletionClient{
		llm:         llm,
		models:      models,
		params:      DefaultCompletionParams,
		maxAttempts: defaultMaxAttempts,
		backoffUnit: defaultBackoffUnit,
		sleep:       sleepContext,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Complete returns the backend's reply to userMessage given the system prompt
// and the prior turns, oldest first.
func (c *CompletionClient) Complete(ctx context.Context, systemPrompt string, history []domain.Turn, userMessage string) (string, error) {
	model := c.models.Settings(ctx).Model
	messages := buildMessages(systemPrompt, history, userMessage)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}

		reply, err := c.llm.Chat(ctx, model, messages, c.params)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		if errors.Is(err, domain.ErrMissingCredential) || !isRateLimited(err) {
			return "", err
		}
		if attempt == c.maxAttempts {
			break
		}

		delay := time.Duration(attempt) * c.backoffUnit
		c.logger.Warn("completion rate limited, retrying", "attempt", attempt, "delay", delay)
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
