// Package chat keeps the per-goal conversation with the placeholder
// assistant. Replies are produced locally after a short delay.
package chat

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"doit/internal/notify"
	"doit/pkg/domain"
)

const (
	WelcomeMessage       = "Welcome! I'm here to help you achieve your goal. Let's start by breaking this down. What's the first thing you think you need to do?"
	DefaultReplyTemplate = "That sounds like a great plan. I can help you research resources for '%s'. Shall we add that to your roadmap?"
	DefaultReplyDelay    = time.Second
)

// Timer is the handle of a scheduled reply.
type Timer interface {
	Stop() bool
}

// Scheduler runs fn once after d on another goroutine. It must not call fn
// before returning.
type Scheduler func(d time.Duration, fn func()) Timer

func afterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

type Option func(*Store)

func WithReplyDelay(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.delay = d
		}
	}
}

func WithScheduler(fn Scheduler) Option {
	return func(s *Store) {
		if fn != nil {
			s.schedule = fn
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithReplyTemplate sets the assistant reply format. It receives the user's
// text through a single %s verb.
func WithReplyTemplate(tmpl string) Option {
	return func(s *Store) {
		if strings.Contains(tmpl, "%s") {
			s.template = tmpl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store is the conversation of one goal. It starts with the assistant's
// welcome message; every sent message gets exactly one delayed reply.
type Store struct {
	goalID   string
	delay    time.Duration
	schedule Scheduler
	now      func() time.Time
	template string
	logger   *slog.Logger

	// deliver is held from a mutation through its notification so
	// subscribers see snapshots in mutation order. Subscribers must not
	// mutate the store.
	deliver   sync.Mutex
	mu        sync.Mutex
	messages  []domain.Message
	input     string
	pending   map[uint64]Timer
	nextTimer uint64
	closed    bool
	subs      notify.Subscribers[[]domain.Message]
}

// New creates the conversation for goalID.
func New(goalID string, opts ...Option) *Store {
	s := &Store{
		goalID:   goalID,
		delay:    DefaultReplyDelay,
		schedule: afterFunc,
		now:      time.Now,
		template: DefaultReplyTemplate,
		logger:   slog.Default(),
		pending:  make(map[uint64]Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.messages = []domain.Message{s.newMessage(WelcomeMessage, false)}
	return s
}

func (s *Store) GoalID() string {
	return s.goalID
}

// SetInput replaces the pending input text.
func (s *Store) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
}

func (s *Store) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// Submit sends the pending input.
func (s *Store) Submit() bool {
	return s.SendMessage(s.Input())
}

// SendMessage appends text as a user message, clears the pending input and
// schedules the assistant reply. Blank text is ignored and reports false.
// The message keeps the text as typed; only the emptiness check trims it.
func (s *Store) SendMessage(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	s.deliver.Lock()
	defer s.deliver.Unlock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.messages = append(s.messages, s.newMessage(text, true))
	s.input = ""
	s.nextTimer++
	id := s.nextTimer
	s.pending[id] = s.schedule(s.delay, func() { s.reply(id, text) })
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.subs.Notify(snapshot)
	return true
}

// Messages returns a copy of the conversation in display order.
func (s *Store) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn for conversation changes and returns a function
// that removes it. Snapshots arrive in mutation order even when a reply
// fires during another notification.
func (s *Store) Subscribe(fn func([]domain.Message)) func() {
	return s.subs.Add(fn)
}

// Pending reports how many replies are still scheduled.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close stops pending replies. A reply that fires anyway is dropped.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, t := range s.pending {
		t.Stop()
		delete(s.pending, id)
	}
}

func (s *Store) reply(id uint64, text string) {
	s.deliver.Lock()
	defer s.deliver.Unlock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("chat reply dropped", "goal_id", s.goalID)
		return
	}
	delete(s.pending, id)
	s.messages = append(s.messages, s.newMessage(fmt.Sprintf(s.template, text), false))
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.subs.Notify(snapshot)
}

func (s *Store) newMessage(content string, isUser bool) domain.Message {
	return domain.Message{
		ID:        uuid.NewString(),
		GoalID:    s.goalID,
		Content:   content,
		IsUser:    isUser,
		Timestamp: s.now(),
	}
}

func (s *Store) snapshotLocked() []domain.Message {
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}
