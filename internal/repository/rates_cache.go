package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"catalog-assistant/internal/domain"
)

const (
	defaultRatesKey = "rates:usd"
	defaultRatesTTL = time.Minute
)

// RatesSource is anything that can produce the current exchange rates.
type RatesSource interface {
	Rates(ctx context.Context) ([]domain.ExchangeRate, error)
}

// redisAPI is the subset of *redis.Client used by CachedRates.
type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type cachedRate struct {
	ToCurrency string  `json:"toCurrency"`
	Rate       float64 `json:"rate"`
}

// CachedRates fronts a RatesSource with a short-lived redis entry. Redis
// failures are logged and fall through to the source.
type CachedRates struct {
	cache  redisAPI
	source RatesSource
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

type CacheOption func(*CachedRates)

func WithRatesTTL(ttl time.Duration) CacheOption {
	return func(c *CachedRates) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *CachedRates) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewCachedRates(cache redisAPI, source RatesSource, opts ...CacheOption) (*CachedRates, error) {
	if cache == nil {
		return nil, errors.New("repository: cache must not be nil")
	}
	if source == nil {
		return nil, errors.New("repository: rates source must not be nil")
	}
	c := &CachedRates{
		cache:  cache,
		source: source,
		key:    defaultRatesKey,
		ttl:    defaultRatesTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *CachedRates) Rates(ctx context.Context) ([]domain.ExchangeRate, error) {
	raw, err := c.cache.Get(ctx, c.key).Result()
	switch {
	case err == nil:
		var cached []cachedRate
		if decErr := json.Unmarshal([]byte(raw), &cached); decErr == nil {
			return fromCached(cached), nil
		}
		c.logger.Warn("discarding malformed cached rates", "key", c.key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("rates cache read failed", "key", c.key, "err", err)
	}

	rates, err := c.source.Rates(ctx)
	if err != nil {
		return nil, err
	}

	buf, err := json.Marshal(toCached(rates))
	if err != nil {
		return rates, nil
	}
	if err := c.cache.Set(ctx, c.key, buf, c.ttl).Err(); err != nil {
		c.logger.Warn("rates cache write failed", "key", c.key, "err", err)
	}
	return rates, nil
}

func toCached(rates []domain.ExchangeRate) []cachedRate {
	out := make([]cachedRate, 0, len(rates))
	for _, r := range rates {
		out = append(out, cachedRate{ToCurrency: r.ToCurrency, Rate: r.Rate})
	}
	return out
}

func fromCached(cached []cachedRate) []domain.ExchangeRate {
	if len(cached) == 0 {
		return nil
	}
	out := make([]domain.ExchangeRate, 0, len(cached))
	for _, r := range cached {
		out = append(out, domain.ExchangeRate{ToCurrency: r.ToCurrency, Rate: r.Rate})
	}
	return out
}
