// Package session holds the client-local belief about which user is signed
// in and mirrors it into the settings store so it survives restarts.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"doit/internal/notify"
	"doit/pkg/domain"
	"doit/pkg/kvstore"
)

// Settings keys holding the persisted session.
const (
	UserIDKey      = "saved_user_id"
	PhoneNumberKey = "saved_phone_number"
)

// State is a snapshot of the session. LoggedIn is true exactly when User is
// set.
type State struct {
	User     *domain.User
	LoggedIn bool
}

// Store is the session state machine: LoggedOut until Login, back to
// LoggedOut on Logout. Subscribers are called synchronously, in subscription
// order, after each mutation is applied.
type Store struct {
	kv     kvstore.Store
	logger *slog.Logger

	// deliver keeps notifications in transition order.
	deliver    sync.Mutex
	mu         sync.Mutex
	current    *domain.User
	generation uint64
	subs       notify.Subscribers[State]
}

// New rehydrates the session from kv. Both keys must be present to come up
// logged in; the restored user has no CreatedAt. Nothing is checked against
// the backend, so the restored session may be stale.
func New(ctx context.Context, kv kvstore.Store, logger *slog.Logger) (*Store, error) {
	if kv == nil {
		return nil, errors.New("session: settings store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{kv: kv, logger: logger}
	userID, okID, err := kv.Get(ctx, UserIDKey)
	if err != nil {
		return nil, fmt.Errorf("load saved user id: %w", err)
	}
	phone, okPhone, err := kv.Get(ctx, PhoneNumberKey)
	if err != nil {
		return nil, fmt.Errorf("load saved phone number: %w", err)
	}
	if okID && okPhone {
		s.current = &domain.User{ID: userID, PhoneNumber: phone}
		logger.Debug("session restored", "user_id", userID)
	}
	return s, nil
}

// Login makes user the current user and persists its id and phone number.
// Calling it again replaces the previous user. The in-memory state changes
// even when persisting fails; the error is returned so callers can warn that
// the session will not survive a restart.
func (s *Store) Login(ctx context.Context, user domain.User) error {
	s.deliver.Lock()
	s.mu.Lock()
	u := user
	s.current = &u
	s.generation++
	state := s.stateLocked()
	s.mu.Unlock()
	s.subs.Notify(state)
	s.deliver.Unlock()

	if err := s.kv.Set(ctx, UserIDKey, user.ID); err != nil {
		s.logger.Warn("persist session failed", "key", UserIDKey, "err", err)
		return fmt.Errorf("persist user id: %w", err)
	}
	if err := s.kv.Set(ctx, PhoneNumberKey, user.PhoneNumber); err != nil {
		s.logger.Warn("persist session failed", "key", PhoneNumberKey, "err", err)
		return fmt.Errorf("persist phone number: %w", err)
	}
	s.logger.Info("session started", "user_id", user.ID)
	return nil
}

// Logout clears the current user and removes the persisted keys.
func (s *Store) Logout(ctx context.Context) error {
	s.deliver.Lock()
	s.mu.Lock()
	s.current = nil
	s.generation++
	state := s.stateLocked()
	s.mu.Unlock()
	s.subs.Notify(state)
	s.deliver.Unlock()

	var errs []error
	for _, key := range []string{UserIDKey, PhoneNumberKey} {
		if err := s.kv.Delete(ctx, key); err != nil {
			s.logger.Warn("clear session failed", "key", key, "err", err)
			errs = append(errs, fmt.Errorf("clear %s: %w", key, err))
		}
	}
	s.logger.Info("session ended")
	return errors.Join(errs...)
}

// Current returns a copy of the current user.
func (s *Store) Current() (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return domain.User{}, false
	}
	return *s.current, true
}

func (s *Store) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Generation changes on every Login and Logout. A deferred result captured
// under one generation must not be applied under another.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Subscribe registers fn for state changes and returns a function that
// removes it. fn must not call Login or Logout.
func (s *Store) Subscribe(fn func(State)) func() {
	return s.subs.Add(fn)
}

func (s *Store) stateLocked() State {
	if s.current == nil {
		return State{}
	}
	u := *s.current
	return State{User: &u, LoggedIn: true}
}
