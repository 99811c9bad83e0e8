package usecase

import (
	"context"
	"errors"
	"sync"

	"catalog-assistant/internal/domain"
)

type mockParams struct {
	vals  map[string]string
	err   error
	calls int
}

func (m *mockParams) GetParameters(_ context.Context, names ...string) (map[string]string, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]string, len(names))
	for _, n := range names {
		if v, ok := m.vals[n]; ok {
			out[n] = v
		}
	}
	return out, nil
}

type chatResponse struct {
	answer string
	err    error
}

type capturedChat struct {
	model    string
	messages []domain.ChatMessage
	params   domain.CompletionParams
}

type mockLLM struct {
	responses []chatResponse
	calls     []capturedChat
}

func (m *mockLLM) Chat(_ context.Context, model string, msgs []domain.ChatMessage, p domain.CompletionParams) (string, error) {
	m.calls = append(m.calls, capturedChat{model: model, messages: msgs, params: p})
	if len(m.responses) == 0 {
		return "", errors.New("no llm response configured")
	}
	idx := len(m.calls) - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return m.responses[idx].answer, m.responses[idx].err
}

type staticModel string

func (m staticModel) Settings(context.Context) Settings {
	return Settings{PersonaPrompt: "You are the shop assistant.", Model: string(m)}
}

type completeCall struct {
	systemPrompt string
	history      []domain.Turn
	message      string
}

// scriptedCompleter answers with replies in order. When gate is set, every
// call reports on entered and then blocks until gate is closed.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []chatResponse
	calls   []completeCall
	entered chan string
	gate    chan struct{}
}

func (c *scriptedCompleter) Complete(_ context.Context, systemPrompt string, history []domain.Turn, msg string) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, completeCall{systemPrompt: systemPrompt, history: history, message: msg})
	idx := len(c.calls) - 1
	c.mu.Unlock()

	if c.entered != nil {
		c.entered <- msg
	}
	if c.gate != nil {
		<-c.gate
	}
	if len(c.replies) == 0 {
		return "ok", nil
	}
	if idx >= len(c.replies) {
		idx = len(c.replies) - 1
	}
	return c.replies[idx].answer, c.replies[idx].err
}

func (c *scriptedCompleter) snapshot() []completeCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]completeCall(nil), c.calls...)
}

type fakeRates struct {
	rates []domain.ExchangeRate
	err   error
}

func (f *fakeRates) Rates(context.Context) ([]domain.ExchangeRate, error) {
	return f.rates, f.err
}

type fakeMatcher struct {
	products []domain.Product
	err      error
	queries  []string
}

func (f *fakeMatcher) Match(_ context.Context, query string, _ int) ([]domain.Product, error) {
	f.queries = append(f.queries, query)
	return f.products, f.err
}

type fakeCategories struct {
	names []string
	err   error
}

func (f *fakeCategories) Categories(context.Context) ([]string, error) {
	return f.names, f.err
}

type recordingPersister struct {
	mu      sync.Mutex
	records []domain.ChatRecord
}

func (p *recordingPersister) Submit(rec domain.ChatRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
}

type fakeSink struct {
	mu      sync.Mutex
	err     error
	records []domain.ChatRecord
	sawDeadline bool
}

func (s *fakeSink) AppendTurns(ctx context.Context, rec domain.ChatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, s.sawDeadline = ctx.Deadline()
	s.records = append(s.records, rec)
	return s.err
}

func price(v float64) *float64 { return &v }
