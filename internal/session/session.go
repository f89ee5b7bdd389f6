// Package session persists the widget's conversation and open flag in a
// key-value store, with expiry, a message cap and empty-reply cleanup.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ashureev/portfolio/internal/domain"
	"github.com/ashureev/portfolio/internal/store"
)

const (
	DefaultKey         = "portfolio-chat-state"
	DefaultMaxAge      = 24 * time.Hour
	DefaultMaxMessages = 50
)

// Store holds an in-memory copy of the chat state and writes it through to a
// KV record. Mutations apply to the copy first; there is no cross-process
// coordination, so the last writer wins.
type Store struct {
	kv          store.KV
	key         string
	maxAge      time.Duration
	maxMessages int
	now         func() time.Time
	logger      *slog.Logger

	mu    sync.Mutex
	state domain.ChatState
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides the record key.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithMaxAge overrides the expiry threshold.
func WithMaxAge(d time.Duration) Option {
	return func(s *Store) { s.maxAge = d }
}

// WithMaxMessages overrides the persisted message cap.
func WithMaxMessages(n int) Option {
	return func(s *Store) { s.maxMessages = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a Store over kv. Call Load before use.
func New(kv store.KV, opts ...Option) *Store {
	s := &Store{
		kv:          kv,
		key:         DefaultKey,
		maxAge:      DefaultMaxAge,
		maxMessages: DefaultMaxMessages,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Load reads the persisted record into memory and returns it. Missing,
// corrupt and expired records all yield an empty state; the latter two are
// deleted.
func (s *Store) Load(ctx context.Context) domain.ChatState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = s.read(ctx)
	return s.snapshot()
}

func (s *Store) read(ctx context.Context) domain.ChatState {
	raw, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, store.ErrNotFound) {
		return domain.ChatState{}
	}
	if err != nil {
		s.logger.Warn("Failed to read chat state", "error", err)
		return domain.ChatState{}
	}

	var st domain.ChatState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		s.logger.Warn("Discarding corrupt chat state", "error", err)
		s.discard(ctx)
		return domain.ChatState{}
	}

	age := s.now().Sub(time.UnixMilli(st.LastActiveTime))
	if age >= s.maxAge {
		s.logger.Debug("Discarding expired chat state", "age", age)
		s.discard(ctx)
		return domain.ChatState{}
	}
	return st
}

func (s *Store) discard(ctx context.Context) {
	if err := s.kv.Remove(ctx, s.key); err != nil {
		s.logger.Warn("Failed to remove chat state", "error", err)
	}
}

// Save persists state, keeping only the most recent messages and stamping
// lastActiveTime.
func (s *Store) Save(ctx context.Context, state domain.ChatState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, state)
}

func (s *Store) save(ctx context.Context, state domain.ChatState) error {
	msgs := state.Messages
	if len(msgs) > s.maxMessages {
		msgs = msgs[len(msgs)-s.maxMessages:]
	}

	stamp := s.now().UnixMilli()
	if stamp <= s.state.LastActiveTime {
		stamp = s.state.LastActiveTime + 1
	}

	next := domain.ChatState{
		Messages:       slices.Clone(msgs),
		IsOpen:         state.IsOpen,
		LastActiveTime: stamp,
	}
	if next.Messages == nil {
		next.Messages = []domain.Message{}
	}

	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode chat state: %w", err)
	}
	s.state = next
	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("persist chat state: %w", err)
	}
	return nil
}

// Persist writes the current in-memory state.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, s.state)
}

// AddMessage drops existing empty assistant messages, appends m stamped with
// the current time, and persists. An empty assistant message is never stored.
func (s *Store) AddMessage(ctx context.Context, m domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := slices.DeleteFunc(slices.Clone(s.state.Messages), domain.IsEmptyAssistant)
	m.Timestamp = s.now().UnixMilli()
	if !domain.IsEmptyAssistant(m) {
		msgs = append(msgs, m)
	}

	next := s.state
	next.Messages = msgs
	return m, s.save(ctx, next)
}

// Clear empties the conversation and deletes the persisted record.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Messages = []domain.Message{}
	if err := s.kv.Remove(ctx, s.key); err != nil {
		return fmt.Errorf("remove chat state: %w", err)
	}
	return nil
}

// CleanDuplicates removes empty assistant messages. When nothing needs
// removing it returns the current slice itself and writes nothing.
func (s *Store) CleanDuplicates(ctx context.Context) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.ContainsFunc(s.state.Messages, domain.IsEmptyAssistant) {
		return s.state.Messages, nil
	}

	next := s.state
	next.Messages = slices.DeleteFunc(slices.Clone(s.state.Messages), domain.IsEmptyAssistant)
	if err := s.save(ctx, next); err != nil {
		return s.state.Messages, err
	}
	return s.state.Messages, nil
}

// ToggleOpen flips the open flag in memory and returns the new value. It is
// persisted by the next write.
func (s *Store) ToggleOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsOpen = !s.state.IsOpen
	return s.state.IsOpen
}

// SetOpen sets the open flag in memory.
func (s *Store) SetOpen(open bool) {
	s.mu.Lock()
	s.state.IsOpen = open
	s.mu.Unlock()
}

// State returns a copy of the in-memory state.
func (s *Store) State() domain.ChatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Messages returns a copy of the conversation.
func (s *Store) Messages() []domain.Message {
	return s.State().Messages
}

// IsOpen reports the open flag.
func (s *Store) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IsOpen
}

func (s *Store) snapshot() domain.ChatState {
	st := s.state
	st.Messages = slices.Clone(s.state.Messages)
	return st
}
