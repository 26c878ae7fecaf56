// Package goals keeps the goal list of the active session in memory.
package goals

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"doit/internal/notify"
	"doit/pkg/domain"
)

var (
	ErrTitleRequired       = errors.New("goal title is required")
	ErrDescriptionRequired = errors.New("goal description is required")
)

// Store holds goals newest-first by insertion. Goals are local only: nothing
// here talks to the backend.
type Store struct {
	// deliver serializes mutation plus notification.
	deliver sync.Mutex
	mu      sync.RWMutex
	goals   []domain.Goal
	now     func() time.Time
	subs    notify.Subscribers[[]domain.Goal]
}

// NewStore returns an empty goal store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// ValidateDraft applies the goal form rules: title and description must not
// be blank. AddGoal itself accepts anything.
func ValidateDraft(title, description string) error {
	if strings.TrimSpace(title) == "" {
		return ErrTitleRequired
	}
	if strings.TrimSpace(description) == "" {
		return ErrDescriptionRequired
	}
	return nil
}

// AddGoal creates a goal with a fresh id and the current time and inserts it
// at the head of the list.
func (s *Store) AddGoal(title, description string, targetDate time.Time) domain.Goal {
	s.deliver.Lock()
	defer s.deliver.Unlock()
	s.mu.Lock()
	goal := domain.Goal{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		TargetDate:  targetDate,
		CreatedAt:   s.now(),
	}
	s.goals = append([]domain.Goal{goal}, s.goals...)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.subs.Notify(snapshot)
	return goal
}

// Goals returns a copy of the list, newest first.
func (s *Store) Goals() []domain.Goal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.goals)
}

// Get looks a goal up by id.
func (s *Store) Get(id string) (domain.Goal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.goals {
		if g.ID == id {
			return g, true
		}
	}
	return domain.Goal{}, false
}

// Reset drops every goal, used when the session that owned them ends.
func (s *Store) Reset() {
	s.deliver.Lock()
	defer s.deliver.Unlock()
	s.mu.Lock()
	if len(s.goals) == 0 {
		s.mu.Unlock()
		return
	}
	s.goals = nil
	s.mu.Unlock()
	s.subs.Notify([]domain.Goal{})
}

// Subscribe registers fn for list changes and returns a function that
// removes it. fn receives its own copy of the list, in mutation order, and
// must not add or reset goals itself.
func (s *Store) Subscribe(fn func([]domain.Goal)) func() {
	return s.subs.Add(fn)
}

func (s *Store) snapshotLocked() []domain.Goal {
	out := make([]domain.Goal, len(s.goals))
	copy(out, s.goals)
	return out
}
