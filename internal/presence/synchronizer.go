// Package presence keeps a participant's presence record in a shared store
// and aggregates the records of everyone else viewing the same resource.
package presence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gh-presence/internal/domain"
)

// Store is the remote object store holding one record per session.
type Store interface {
	Upsert(ctx context.Context, rec domain.PresenceRecord) error
	Query(ctx context.Context, q domain.PresenceQuery) ([]domain.PresenceRecord, error)
}

// Synchronizer reconciles the local participant's state with a Store.
type Synchronizer struct {
	store     Store
	identity  domain.Identity
	sessionID string
	settings  Settings
	clock     clock.Clock
	logger    *zap.Logger

	mu       sync.Mutex
	path     string
	isTyping bool
}

type Option func(*Synchronizer)

func WithClock(c clock.Clock) Option {
	return func(s *Synchronizer) {
		s.clock = c
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = l
	}
}

// WithSessionID pins the session identity instead of generating one.
func WithSessionID(id string) Option {
	return func(s *Synchronizer) {
		s.sessionID = strings.TrimSpace(id)
	}
}

func NewSynchronizer(store Store, identity domain.Identity, settings Settings, opts ...Option) (*Synchronizer, error) {
	if store == nil {
		return nil, errors.New("presence: store must not be nil")
	}
	identity.User = strings.TrimSpace(identity.User)
	if identity.User == "" {
		return nil, errors.New("presence: user must not be empty")
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	s := &Synchronizer{
		store:    store,
		identity: identity,
		settings: settings,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sessionID == "" {
		s.sessionID = newSessionID()
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s, nil
}

func (s *Synchronizer) SessionID() string { return s.sessionID }

func (s *Synchronizer) User() string { return s.identity.User }

func (s *Synchronizer) Settings() Settings { return s.settings }

// LocalState returns the last state handed to SetLocalState.
func (s *Synchronizer) LocalState() (path string, isTyping bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path, s.isTyping
}

// SetLocalState records what this session is viewing and pushes the full
// record to the store. An empty path marks the session as not viewing anything.
func (s *Synchronizer) SetLocalState(ctx context.Context, path string, isTyping bool) error {
	s.mu.Lock()
	s.path = path
	s.isTyping = isTyping
	s.mu.Unlock()

	rec := domain.PresenceRecord{
		SessionID: s.sessionID,
		User:      s.identity.User,
		Avatar:    s.identity.Avatar,
		Path:      path,
		IsTyping:  isTyping,
		UpdatedAt: s.clock.Now().UTC(),
	}
	if err := s.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("presence: push state: %w", err)
	}
	s.logger.Debug("presence pushed",
		zap.String("session_id", s.sessionID),
		zap.String("path", path),
		zap.Bool("is_typing", isTyping),
	)
	return nil
}

// ClearLocalState soft-deletes the session by pushing a null path.
func (s *Synchronizer) ClearLocalState(ctx context.Context) error {
	return s.SetLocalState(ctx, "", false)
}

// FetchPeers returns the live records of other users on path, one per user.
func (s *Synchronizer) FetchPeers(ctx context.Context, path string) ([]domain.PresenceRecord, error) {
	if path == "" {
		return nil, nil
	}
	cutoff := s.clock.Now().Add(-s.settings.SessionTimeout)
	recs, err := s.store.Query(ctx, domain.PresenceQuery{
		Path:         path,
		ExcludeUser:  s.identity.User,
		UpdatedAfter: cutoff,
	})
	if err != nil {
		return nil, fmt.Errorf("presence: fetch peers: %w", err)
	}
	return Aggregate(recs, s.identity.User, path, cutoff), nil
}

var newSessionID = func() string {
	return uuid.NewString()
}
