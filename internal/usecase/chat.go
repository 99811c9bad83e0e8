package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"catalog-assistant/internal/catalog"
	"catalog-assistant/internal/domain"
	"catalog-assistant/internal/memory"
)

const (
	DefaultMaxMessageLen = 2000
	DefaultMaxProducts   = catalog.DefaultResponseLimit
)

type ProductMatcher interface {
	Match(ctx context.Context, query string, limit int) ([]domain.Product, error)
}

type CategoryLister interface {
	Categories(ctx context.Context) ([]string, error)
}

type RatesSource interface {
	Rates(ctx context.Context) ([]domain.ExchangeRate, error)
}

type Completer interface {
	Complete(ctx context.Context, systemPrompt string, history []domain.Turn, userMessage string) (string, error)
}

type Persister interface {
	Submit(rec domain.ChatRecord)
}

// Dependencies are the collaborators of a ChatService. All are required.
type Dependencies struct {
	Config     ModelSource
	Matcher    ProductMatcher
	Categories CategoryLister
	Rates      RatesSource
	Memory     memory.Store
	Completer  Completer
	Persister  Persister
}

// ChatService runs one conversational turn end to end.
type ChatService struct {
	config     ModelSource
	matcher    ProductMatcher
	categories CategoryLister
	rates      RatesSource
	memory     memory.Store
	completer  Completer
	persister  Persister

	maxProducts   int
	maxMessageLen int
	logger        *slog.Logger
	now           func() time.Time
}

type TurnInput struct {
	ChatID  string
	Channel domain.Channel
	Message string
}

type TurnOutput struct {
	Text     string
	Products []domain.Product
}

type ChatOption func(*ChatService)

// WithMaxProducts caps the products handed to the model and the channel.
func WithMaxProducts(n int) ChatOption {
	return func(s *ChatService) {
		if n > 0 {
			s.maxProducts = n
		}
	}
}

func WithMaxMessageLen(n int) ChatOption {
	return func(s *ChatService) {
		if n > 0 {
			s.maxMessageLen = n
		}
	}
}

func WithLogger(l *slog.Logger) ChatOption {
	return func(s *ChatService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewChatService(d Dependencies, opts ...ChatOption) (*ChatService, error) {
	switch {
	case d.Config == nil:
		return nil, errors.New("usecase: config must not be nil")
	case d.Matcher == nil:
		return nil, errors.New("usecase: product matcher must not be nil")
	case d.Categories == nil:
		return nil, errors.New("usecase: category lister must not be nil")
	case d.Rates == nil:
		return nil, errors.New("usecase: rates source must not be nil")
	case d.Memory == nil:
		return nil, errors.New("usecase: conversation memory must not be nil")
	case d.Completer == nil:
		return nil, errors.New("usecase: completer must not be nil")
	case d.Persister == nil:
		return nil, errors.New("usecase: persister must not be nil")
	}
	s := &ChatService{
		config:        d.Config,
		matcher:       d.Matcher,
		categories:    d.Categories,
		rates:         d.Rates,
		memory:        d.Memory,
		completer:     d.Completer,
		persister:     d.Persister,
		maxProducts:   DefaultMaxProducts,
		maxMessageLen: DefaultMaxMessageLen,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// HandleTurn answers one user message. Turns of the same chat are serialized;
// memory is only updated when the backend produced an answer.
func (s *ChatService) HandleTurn(ctx context.Context, in TurnInput) (TurnOutput, error) {
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return TurnOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(msg) > s.maxMessageLen {
		return TurnOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	chatID := strings.TrimSpace(in.ChatID)
	if chatID == "" {
		return TurnOutput{}, newError(ErrorInvalidInput, "missing_chat_id", nil)
	}
	channel := in.Channel
	if channel == "" {
		channel = domain.ChannelFromChatID(chatID)
	}

	unlock := s.memory.Lock(chatID)
	defer unlock()

	products, rates, lookup := s.ground(ctx, chatID, msg)
	systemPrompt := BuildSystemPrompt(s.config.Settings(ctx).PersonaPrompt, AssembleContext(products, rates, lookup))

	if dropped := s.memory.Trim(chatID); dropped > 0 {
		s.logger.Debug("trimmed chat history", "chat_id", chatID, "dropped", dropped)
	}
	history := s.memory.Get(chatID)

	answer, err := s.completer.Complete(ctx, systemPrompt, history, msg)
	if err != nil {
		uerr := classifyCompletionError(err)
		s.logger.Error("completion failed", "chat_id", chatID, "code", uerr.Code, "reason", uerr.Reason, "err", err)
		return TurnOutput{}, uerr
	}

	now := s.now().UTC()
	turns := []domain.Turn{
		{Role: domain.RoleUser, Content: msg, Timestamp: now},
		{Role: domain.RoleAssistant, Content: answer, Timestamp: now},
	}
	s.memory.Append(chatID, turns...)
	s.memory.Trim(chatID)
	s.persister.Submit(domain.ChatRecord{ChatID: chatID, Channel: channel, Turns: turns})

	return TurnOutput{Text: answer, Products: products}, nil
}

// ground fetches exchange rates and, for product queries, matching products.
// Failures of either degrade the context instead of failing the turn.
func (s *ChatService) ground(ctx context.Context, chatID, msg string) ([]domain.Product, []domain.ExchangeRate, Lookup) {
	var (
		products []domain.Product
		rates    []domain.ExchangeRate
		lookup   = LookupSkipped
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := s.rates.Rates(gctx)
		if err != nil {
			s.logger.Warn("exchange rates unavailable", "chat_id", chatID, "err", err)
			return nil
		}
		rates = r
		return nil
	})

	if catalog.IsProductQuery(msg) {
		lookup = LookupDone
		g.Go(func() error {
			p, err := s.matcher.Match(gctx, msg, s.maxProducts)
			if err != nil {
				s.logger.Warn("catalog lookup failed", "chat_id", chatID, "err", err)
				lookup = LookupFailed
				return nil
			}
			products = p
			return nil
		})
	}

	_ = g.Wait()
	if lookup == LookupFailed {
		products = nil
	}
	return products, rates, lookup
}

// Reset forgets the chat's history.
func (s *ChatService) Reset(chatID string) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return
	}
	unlock := s.memory.Lock(chatID)
	defer unlock()
	s.memory.Clear(chatID)
}

// Categories lists the catalog's product categories.
func (s *ChatService) Categories(ctx context.Context) ([]string, error) {
	cats, err := s.categories.Categories(ctx)
	if err != nil {
		return nil, newError(ErrorUpstream, "catalog_unavailable", err)
	}
	return cats, nil
}
