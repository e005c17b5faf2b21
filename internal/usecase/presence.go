package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"gh-presence/internal/domain"
	"gh-presence/internal/locator"
	"gh-presence/internal/presence"
)

// throttleCodes are store error codes reported to callers as rate limiting.
var throttleCodes = map[string]bool{
	"ProvisionedThroughputExceededException": true,
	"RequestLimitExceeded":                   true,
	"ThrottlingException":                    true,
}

type apiErrorCoder interface {
	ErrorCode() string
}

// PresenceService exposes the presence synchronizer to remote clients, one
// request at a time.
type PresenceService struct {
	store    presence.Store
	settings presence.SettingsSource
	clock    clock.Clock
	logger   *zap.Logger
}

type HeartbeatInput struct {
	SessionID string
	User      string
	Avatar    string
	Path      string
	IsTyping  bool
}

type ClearInput struct {
	SessionID string
	User      string
}

type PeersInput struct {
	User string
	Path string
}

type PeersOutput struct {
	Reading []domain.PresenceRecord
	Writing []domain.PresenceRecord
}

type ServiceOption func(*PresenceService)

func WithClock(c clock.Clock) ServiceOption {
	return func(s *PresenceService) {
		s.clock = c
	}
}

func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *PresenceService) {
		s.logger = l
	}
}

func NewPresenceService(store presence.Store, settings presence.SettingsSource, opts ...ServiceOption) (*PresenceService, error) {
	if store == nil {
		return nil, errors.New("usecase: presence store must not be nil")
	}
	if settings == nil {
		return nil, errors.New("usecase: settings source must not be nil")
	}
	s := &PresenceService{store: store, settings: settings}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s, nil
}

// Heartbeat stores the caller's current state. Paths that are not an issue
// or pull request are stored as "not viewing anything".
func (s *PresenceService) Heartbeat(ctx context.Context, in HeartbeatInput) error {
	path, _ := locator.ResourcePath(strings.TrimSpace(in.Path))
	syn, err := s.sessionSynchronizer(ctx, in.User, in.Avatar, in.SessionID)
	if err != nil {
		return err
	}
	if err := syn.SetLocalState(ctx, path, in.IsTyping && path != ""); err != nil {
		return storeError("store_write_error", err)
	}
	return nil
}

// Clear marks the session as no longer viewing anything.
func (s *PresenceService) Clear(ctx context.Context, in ClearInput) error {
	syn, err := s.sessionSynchronizer(ctx, in.User, "", in.SessionID)
	if err != nil {
		return err
	}
	if err := syn.ClearLocalState(ctx); err != nil {
		return storeError("store_write_error", err)
	}
	return nil
}

// Peers returns the other users on a path, split into readers and writers.
func (s *PresenceService) Peers(ctx context.Context, in PeersInput) (PeersOutput, error) {
	path, ok := locator.ResourcePath(strings.TrimSpace(in.Path))
	if !ok {
		return PeersOutput{}, newError(ErrorInvalidInput, "invalid_path", nil)
	}
	// Peer reads never write, so the generated session ID goes unused.
	syn, err := s.synchronizer(ctx, in.User, "", "")
	if err != nil {
		return PeersOutput{}, err
	}
	recs, err := syn.FetchPeers(ctx, path)
	if err != nil {
		return PeersOutput{}, storeError("store_query_error", err)
	}
	p := presence.Partition(recs)
	return PeersOutput{Reading: p.Reading, Writing: p.Writing}, nil
}

func (s *PresenceService) sessionSynchronizer(ctx context.Context, user, avatar, sessionID string) (*presence.Synchronizer, error) {
	if strings.TrimSpace(user) == "" {
		return nil, newError(ErrorInvalidInput, "missing_user", nil)
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, newError(ErrorInvalidInput, "missing_session_id", nil)
	}
	return s.synchronizer(ctx, user, avatar, sessionID)
}

func (s *PresenceService) synchronizer(ctx context.Context, user, avatar, sessionID string) (*presence.Synchronizer, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, newError(ErrorInvalidInput, "missing_user", nil)
	}
	settings, err := s.settings.Settings(ctx)
	if err != nil {
		return nil, newError(ErrorInternal, "settings_load_error", err)
	}
	syn, err := presence.NewSynchronizer(s.store, domain.Identity{User: user, Avatar: strings.TrimSpace(avatar)}, settings,
		presence.WithSessionID(sessionID),
		presence.WithClock(s.clock),
		presence.WithLogger(s.logger),
	)
	if err != nil {
		return nil, newError(ErrorInternal, "synchronizer_error", err)
	}
	return syn, nil
}

func storeError(reason string, err error) *Error {
	var coder apiErrorCoder
	if errors.As(err, &coder) && throttleCodes[coder.ErrorCode()] {
		return newError(ErrorRateLimited, "store_throttled", err)
	}
	return newError(ErrorUpstream, reason, err)
}
