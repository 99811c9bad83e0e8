package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
)

const (
	DefaultModel = "llama-3.3-70b-versatile"

	DefaultPersonaPrompt = "You are the sales assistant of a phone parts and accessories shop. " +
		"Answer in the customer's language, briefly and kindly. " +
		"Quote prices and stock only from the catalog context you are given and " +
		"suggest contacting the shop for anything that is not listed."
)

// ParamsGetter reads a batch of parameters; missing names are absent from the result.
type ParamsGetter interface {
	GetParameters(ctx context.Context, names ...string) (map[string]string, error)
}

// Settings is the runtime configuration that can change without a deploy.
type Settings struct {
	PersonaPrompt string
	Model         string
}

// RuntimeConfig loads Settings from the parameter store on first use and
// caches them for the lifetime of the process. A failed load falls back to
// the defaults for that call and is retried on the next one.
type RuntimeConfig struct {
	params   ParamsGetter
	prefix   string
	defaults Settings
	logger   *slog.Logger

	mu       sync.RWMutex
	loaded   bool
	settings Settings
}

type ConfigOption func(*RuntimeConfig)

// WithDefaultSettings overrides the built-in fallbacks. Empty fields keep the built-ins.
func WithDefaultSettings(s Settings) ConfigOption {
	return func(c *RuntimeConfig) {
		if p := strings.TrimSpace(s.PersonaPrompt); p != "" {
			c.defaults.PersonaPrompt = p
		}
		if m := strings.TrimSpace(s.Model); m != "" {
			c.defaults.Model = m
		}
	}
}

func WithConfigLogger(l *slog.Logger) ConfigOption {
	return func(c *RuntimeConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewRuntimeConfig builds a RuntimeConfig. A nil getter serves the defaults only.
func NewRuntimeConfig(p ParamsGetter, paramPrefix string, opts ...ConfigOption) (*RuntimeConfig, error) {
	c := &RuntimeConfig{
		params: p,
		prefix: strings.TrimRight(strings.TrimSpace(paramPrefix), "/"),
		defaults: Settings{
			PersonaPrompt: DefaultPersonaPrompt,
			Model:         DefaultModel,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if p != nil && c.prefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	return c, nil
}

// Settings returns the cached settings, loading them first if needed.
func (c *RuntimeConfig) Settings(ctx context.Context) Settings {
	c.mu.RLock()
	if c.loaded {
		s := c.settings
		c.mu.RUnlock()
		return s
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.settings
	}
	if c.params == nil {
		c.settings, c.loaded = c.defaults, true
		return c.settings
	}

	s, err := c.load(ctx)
	if err != nil {
		c.logger.Warn("runtime config load failed, using defaults", "err", err)
		return c.defaults
	}
	c.settings, c.loaded = s, true
	return s
}

func (c *RuntimeConfig) load(ctx context.Context) (Settings, error) {
	personaName := c.prefix + "/persona_prompt"
	modelName := c.prefix + "/config/model"

	values, err := c.params.GetParameters(ctx, personaName, modelName)
	if err != nil {
		return Settings{}, err
	}

	s := c.defaults
	if v := strings.TrimSpace(values[personaName]); v != "" {
		s.PersonaPrompt = v
	}
	if v := strings.TrimSpace(values[modelName]); v != "" {
		s.Model = v
	}
	return s, nil
}
