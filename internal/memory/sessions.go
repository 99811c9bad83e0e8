// Package memory keeps bounded, volatile per-chat conversation history.
package memory

import (
	"sync"
	"time"

	"catalog-assistant/internal/domain"
)

// DefaultMaxTurns is the number of user/assistant pairs remembered per chat.
const DefaultMaxTurns = 10

// Store is the conversation memory contract. Implementations must be safe
// for concurrent use across chats; callers serialize work on one chat with
// Lock.
type Store interface {
	Get(chatID string) []domain.Turn
	Append(chatID string, turns ...domain.Turn)
	Trim(chatID string) int
	Clear(chatID string)
	Lock(chatID string) (unlock func())
}

type session struct {
	turns     []domain.Turn
	updatedAt time.Time
}

type chatLock struct {
	mu   sync.Mutex
	refs int
}

// Sessions is the in-process Store.
type Sessions struct {
	maxTurns int
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session

	locksMu sync.Mutex
	locks   map[string]*chatLock
}

// NewSessions returns a Store remembering at most maxTurns pairs per chat.
func NewSessions(maxTurns int) *Sessions {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Sessions{
		maxTurns: maxTurns,
		now:      time.Now,
		sessions: make(map[string]*session),
		locks:    make(map[string]*chatLock),
	}
}

// MaxEntries is the history cap: 2×maxTurns.
func (s *Sessions) MaxEntries() int {
	return 2 * s.maxTurns
}

// Get returns a copy of the chat's turns, creating an empty session on
// first access.
func (s *Sessions) Get(chatID string) []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessionLocked(chatID)
	out := make([]domain.Turn, len(sess.turns))
	copy(out, sess.turns)
	return out
}

// Append adds turns in order. The cap is enforced by Trim, not here.
func (s *Sessions) Append(chatID string, turns ...domain.Turn) {
	if len(turns) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessionLocked(chatID)
	sess.turns = append(sess.turns, turns...)
	sess.updatedAt = s.now()
}

// Trim drops the oldest entries beyond the cap, always an even number so
// user/assistant alignment is kept. It returns the number dropped.
func (s *Sessions) Trim(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[chatID]
	if !ok {
		return 0
	}
	excess := len(sess.turns) - s.MaxEntries()
	if excess <= 0 {
		return 0
	}
	if excess%2 != 0 {
		excess++
	}
	kept := make([]domain.Turn, len(sess.turns)-excess)
	copy(kept, sess.turns[excess:])
	sess.turns = kept
	return excess
}

// Clear forgets the chat entirely.
func (s *Sessions) Clear(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, chatID)
}

// Len returns the number of turns held for the chat.
func (s *Sessions) Len(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[chatID]; ok {
		return len(sess.turns)
	}
	return 0
}

// Session returns a snapshot of the chat session, if any.
func (s *Sessions) Session(chatID string) (domain.ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[chatID]
	if !ok {
		return domain.ChatSession{}, false
	}
	turns := make([]domain.Turn, len(sess.turns))
	copy(turns, sess.turns)
	return domain.ChatSession{
		ChatID:    chatID,
		Channel:   domain.ChannelFromChatID(chatID),
		Turns:     turns,
		UpdatedAt: sess.updatedAt,
	}, true
}

// Lock serializes turns on one chat. Chats never contend with each other and
// the lock entry is released once no caller holds or waits on it.
func (s *Sessions) Lock(chatID string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[chatID]
	if !ok {
		l = &chatLock{}
		s.locks[chatID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			s.locksMu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(s.locks, chatID)
			}
			s.locksMu.Unlock()
		})
	}
}

func (s *Sessions) sessionLocked(chatID string) *session {
	sess, ok := s.sessions[chatID]
	if !ok {
		sess = &session{updatedAt: s.now()}
		s.sessions[chatID] = sess
	}
	return sess
}
