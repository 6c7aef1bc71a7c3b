package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/efraindeloa/breakfast2-sub002/internal/identity/domain"
)

var ErrInvalidUserID = errors.New("invalid authenticated user id")

// Listener observes an identity transition. It runs to completion before the
// transition commits, so consumers never read a half-migrated state under the
// new identity. A listener error is logged, never propagated into the
// login/logout itself.
//
// Listeners receive prev and next explicitly and must not call back into
// Current while handling the event.
type Listener func(ctx context.Context, event domain.Event, prev, next domain.ID) error

// Session is the single source of truth for who the current identity is and
// the sole emitter of transition events.
type Session struct {
	mu        sync.Mutex
	log       *slog.Logger
	ids       AnonymousIDStore
	auth      AuthProvider
	current   domain.ID // authenticated id, "" when anonymous
	anon      domain.ID // cached anonymous id
	listeners []Listener
}

func NewSession(ids AnonymousIDStore, auth AuthProvider, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		log:  log.With("component", "identity_session"),
		ids:  ids,
		auth: auth,
	}
}

// OnTransition registers a listener. Registration order is invocation order.
func (s *Session) OnTransition(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Current returns the authenticated id when a verified session exists, else
// the stable anonymous id, creating one on first use.
func (s *Session) Current(ctx context.Context) domain.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.Authenticated() {
		return s.current
	}
	return s.anonymousLocked(ctx)
}

// Resume asks the auth provider whether a verified session already exists and
// adopts it without firing a transition: the remote store is already
// authoritative for a restored session, there is nothing to migrate.
func (s *Session) Resume(ctx context.Context) domain.ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, err := s.auth.CurrentUserID(ctx)
	if err != nil {
		// Provider unreachable: stay anonymous, not an error.
		s.log.Warn("auth provider unreachable, staying anonymous", "error", err)
		return s.anonymousLocked(ctx)
	}

	next := domain.ID(userID)
	if !next.Authenticated() {
		return s.anonymousLocked(ctx)
	}

	s.current = next
	return next
}

// Login transitions to an authenticated identity. Listeners (migration
// included) run to completion before the new identity becomes current.
func (s *Session) Login(ctx context.Context, userID string) (domain.ID, error) {
	next := domain.ID(userID)
	if !next.Authenticated() {
		return "", ErrInvalidUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == next {
		return next, nil
	}

	prev := s.current
	if !prev.Authenticated() {
		prev = s.anonymousLocked(ctx)
	}

	s.notifyLocked(ctx, domain.EventLogin, prev, next)
	s.current = next
	return next, nil
}

// Logout drops the authenticated identity and begins a fresh anonymous
// session. The previous session's state is quarantined by listeners (the
// reconciler's pending-migration snapshot), so an unrelated anonymous cart is
// never overwritten and a prompt re-login resumes exactly.
func (s *Session) Logout(ctx context.Context) domain.ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current
	if !prev.Authenticated() {
		return s.anonymousLocked(ctx)
	}

	next := domain.NewAnonymous()
	if err := s.ids.SaveAnonymousID(ctx, string(next)); err != nil {
		s.log.Warn("could not persist anonymous id", "error", err)
	}

	s.notifyLocked(ctx, domain.EventLogout, prev, next)
	s.current = ""
	s.anon = next
	return next
}

func (s *Session) anonymousLocked(ctx context.Context) domain.ID {
	if s.anon != "" {
		return s.anon
	}

	stored, err := s.ids.AnonymousID(ctx)
	if err != nil {
		s.log.Warn("could not read anonymous id", "error", err)
	}
	if stored != "" {
		s.anon = domain.ID(stored)
		return s.anon
	}

	s.anon = domain.NewAnonymous()
	if err := s.ids.SaveAnonymousID(ctx, string(s.anon)); err != nil {
		s.log.Warn("could not persist anonymous id", "error", err)
	}
	return s.anon
}

func (s *Session) notifyLocked(ctx context.Context, event domain.Event, prev, next domain.ID) {
	for _, fn := range s.listeners {
		if err := fn(ctx, event, prev, next); err != nil {
			s.log.Error("transition listener failed",
				"event", string(event),
				"prev", string(prev),
				"next", string(next),
				"error", err,
			)
		}
	}
}
