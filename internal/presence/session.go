package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"gh-presence/internal/domain"
)

const (
	defaultDebounce = time.Second
	requestTimeout  = 10 * time.Second
	clearTimeout    = 5 * time.Second
)

// SessionConfig describes one page-load worth of presence.
type SessionConfig struct {
	Store     Store
	Settings  SettingsSource
	Identity  domain.Identity
	SessionID string
	// Path is the resource being viewed when the session starts, if known.
	Path string
	// Debounce is the quiet period after the last input event before the
	// typing flag is pushed.
	Debounce time.Duration
	// OnPeers receives the partitioned peers after every successful poll.
	OnPeers func(Peers)
	Clock   clock.Clock
	Logger  *zap.Logger
}

// Session drives a Synchronizer from three independent schedules: the
// session refresh ticker, the peer poll ticker and the typing debounce timer.
// All state changes and store calls happen on a single loop goroutine.
// Remote failures are logged and dropped; the next tick corrects them.
type Session struct {
	sync     *Synchronizer
	clock    clock.Clock
	logger   *zap.Logger
	debounce time.Duration
	onPeers  func(Peers)

	refresh *clock.Ticker
	poll    *clock.Ticker

	calls     chan func()
	quit      chan struct{}
	stopped   chan struct{}
	cleared   chan struct{}
	closeOnce sync.Once

	// Owned by the loop.
	path      string
	typing    bool
	pending   bool
	timer     *clock.Timer
	debounceC <-chan time.Time
	peers     Peers
}

// StartSession loads the settings once, pushes the initial state and starts
// the schedules. Settings that cannot be loaded fall back to DefaultSettings.
func StartSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if cfg.Store == nil {
		return nil, errors.New("presence: store must not be nil")
	}
	if cfg.Settings == nil {
		return nil, errors.New("presence: settings source must not be nil")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}

	settings, err := cfg.Settings.Settings(ctx)
	if err != nil {
		cfg.Logger.Warn("presence settings unavailable, using defaults", zap.Error(err))
		settings = DefaultSettings()
	}

	syn, err := NewSynchronizer(cfg.Store, cfg.Identity, settings,
		WithClock(cfg.Clock),
		WithLogger(cfg.Logger),
		WithSessionID(cfg.SessionID),
	)
	if err != nil {
		return nil, err
	}

	s := &Session{
		sync:     syn,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With(zap.String("user", syn.User()), zap.String("session_id", syn.SessionID())),
		debounce: cfg.Debounce,
		onPeers:  cfg.OnPeers,
		refresh:  cfg.Clock.Ticker(settings.RefreshInterval()),
		poll:     cfg.Clock.Ticker(settings.UpdateInterval),
		calls:    make(chan func()),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
		cleared:  make(chan struct{}),
		path:     cfg.Path,
	}

	s.push()
	if s.path != "" {
		s.fetch()
	}
	go s.run()
	return s, nil
}

func (s *Session) run() {
	defer close(s.stopped)
	for {
		select {
		case fn := <-s.calls:
			fn()
		case <-s.refresh.C:
			if s.path != "" {
				s.push()
			}
		case <-s.poll.C:
			s.fetch()
		case <-s.debounceC:
			s.debounceC = nil
			s.timer = nil
			s.typing = s.pending
			s.push()
		case <-s.quit:
			s.refresh.Stop()
			s.poll.Stop()
			s.stopTimer()
			return
		}
	}
}

// do runs fn on the loop and waits for it. It reports false once the
// session has stopped.
func (s *Session) do(fn func()) bool {
	done := make(chan struct{})
	select {
	case s.calls <- func() {
		defer close(done)
		fn()
	}:
	case <-s.stopped:
		return false
	}
	<-done
	return true
}

// Synchronizer exposes the underlying synchronizer.
func (s *Session) Synchronizer() *Synchronizer { return s.sync }

// Navigate switches the session to a new resource. Pending typing is
// discarded; the new state is pushed and peers are fetched right away.
func (s *Session) Navigate(path string) {
	s.do(func() {
		s.path = path
		s.typing = false
		s.pending = false
		s.stopTimer()
		s.push()
		s.fetch()
	})
}

// Input reports an input event. The typing flag is pushed once no further
// input arrives for the debounce period.
func (s *Session) Input(hasUnsentText bool) {
	s.do(func() {
		s.pending = hasUnsentText
		s.stopTimer()
		s.timer = s.clock.Timer(s.debounce)
		s.debounceC = s.timer.C
	})
}

// Refresh pushes the current state immediately.
func (s *Session) Refresh() {
	s.do(s.push)
}

// Poll fetches peers immediately.
func (s *Session) Poll() {
	s.do(s.fetch)
}

// Peers returns the result of the last successful poll.
func (s *Session) Peers() Peers {
	var p Peers
	s.do(func() { p = s.peers })
	return p
}

// Close stops the schedules and clears the session record in the
// background. It does not wait for the store.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		go func() {
			defer close(s.cleared)
			<-s.stopped
			ctx, cancel := context.WithTimeout(context.Background(), clearTimeout)
			defer cancel()
			if err := s.sync.ClearLocalState(ctx); err != nil {
				s.logger.Warn("presence clear failed", zap.Error(err))
			}
		}()
	})
}

// Done is closed once the background clear started by Close has finished.
func (s *Session) Done() <-chan struct{} { return s.cleared }

func (s *Session) push() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := s.sync.SetLocalState(ctx, s.path, s.typing); err != nil {
		s.logger.Warn("presence push failed", zap.String("path", s.path), zap.Error(err))
	}
}

func (s *Session) fetch() {
	if s.path == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	recs, err := s.sync.FetchPeers(ctx, s.path)
	if err != nil {
		s.logger.Warn("presence poll failed", zap.String("path", s.path), zap.Error(err))
		return
	}
	s.peers = Partition(recs)
	if s.onPeers != nil {
		s.onPeers(s.peers)
	}
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = nil
	s.debounceC = nil
}
