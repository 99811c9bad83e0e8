package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"catalog-assistant/internal/domain"
)

const defaultPersistTimeout = 5 * time.Second

// TurnSink is the durable, append-only chat log.
type TurnSink interface {
	AppendTurns(ctx context.Context, rec domain.ChatRecord) error
}

// AsyncPersister writes completed turns in the background. Writes are never
// retried and their failures never reach the user.
type AsyncPersister struct {
	sink    TurnSink
	timeout time.Duration
	logger  *slog.Logger
	onDone  func(rec domain.ChatRecord, err error)

	wg sync.WaitGroup
}

type PersisterOption func(*AsyncPersister)

func WithPersistTimeout(d time.Duration) PersisterOption {
	return func(p *AsyncPersister) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithOnDone registers a callback invoked after every write attempt.
func WithOnDone(fn func(rec domain.ChatRecord, err error)) PersisterOption {
	return func(p *AsyncPersister) {
		p.onDone = fn
	}
}

func WithPersisterLogger(l *slog.Logger) PersisterOption {
	return func(p *AsyncPersister) {
		if l != nil {
			p.logger = l
		}
	}
}

func NewAsyncPersister(sink TurnSink, opts ...PersisterOption) (*AsyncPersister, error) {
	if sink == nil {
		return nil, errors.New("usecase: turn sink must not be nil")
	}
	p := &AsyncPersister{
		sink:    sink,
		timeout: defaultPersistTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Submit schedules rec for writing and returns immediately.
func (p *AsyncPersister) Submit(rec domain.ChatRecord) {
	if len(rec.Turns) == 0 {
		return
	}
	rec.Turns = append([]domain.Turn(nil), rec.Turns...)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		err := p.sink.AppendTurns(ctx, rec)
		if err != nil {
			p.logger.Error("persist chat turns", "chat_id", rec.ChatID, "turns", len(rec.Turns), "err", err)
		}
		if p.onDone != nil {
			p.onDone(rec, err)
		}
	}()
}

// Wait blocks until every submitted write has finished.
func (p *AsyncPersister) Wait() {
	p.wg.Wait()
}
