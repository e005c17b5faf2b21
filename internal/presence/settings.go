package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
)

const (
	defaultSessionTimeout = 60 * time.Second
	defaultNetworkLatency = 5 * time.Second
	defaultUpdateInterval = 5 * time.Second

	paramSessionTimeout = "/session_timeout_ms"
	paramNetworkLatency = "/network_latency_ms"
	paramUpdateInterval = "/update_interval_ms"
)

// Settings are the presence timing parameters. They are fixed for the
// lifetime of a session.
type Settings struct {
	SessionTimeout time.Duration
	NetworkLatency time.Duration
	UpdateInterval time.Duration
}

// DefaultSettings returns the timings used when no remote settings are available.
func DefaultSettings() Settings {
	return Settings{
		SessionTimeout: defaultSessionTimeout,
		NetworkLatency: defaultNetworkLatency,
		UpdateInterval: defaultUpdateInterval,
	}
}

// RefreshInterval is how often a session re-pushes its state so that the
// record never ages past SessionTimeout, allowing NetworkLatency of delay.
func (s Settings) RefreshInterval() time.Duration {
	return s.SessionTimeout - s.NetworkLatency
}

func (s Settings) Validate() error {
	var err error
	if s.SessionTimeout <= 0 {
		err = multierr.Append(err, errors.New("session timeout must be positive"))
	}
	if s.NetworkLatency <= 0 {
		err = multierr.Append(err, errors.New("network latency must be positive"))
	}
	if s.UpdateInterval <= 0 {
		err = multierr.Append(err, errors.New("update interval must be positive"))
	}
	if s.SessionTimeout > 0 && s.NetworkLatency >= s.SessionTimeout {
		err = multierr.Append(err, errors.New("network latency must be shorter than session timeout"))
	}
	if err != nil {
		return fmt.Errorf("presence: invalid settings: %w", err)
	}
	return nil
}

// SettingsSource supplies the presence timings.
type SettingsSource interface {
	Settings(ctx context.Context) (Settings, error)
}

// StaticSource always returns the wrapped settings.
type StaticSource Settings

func (s StaticSource) Settings(context.Context) (Settings, error) {
	return Settings(s), nil
}

// ParamGetter fetches several parameters by name in one call.
type ParamGetter interface {
	GetParameters(ctx context.Context, names []string) (map[string]string, error)
}

// ParamSource loads settings from a parameter store once and caches them.
// Failed loads are not cached so that a later session can retry.
type ParamSource struct {
	params ParamGetter
	prefix string

	mu       sync.RWMutex
	loaded   bool
	settings Settings
}

func NewParamSource(p ParamGetter, prefix string) (*ParamSource, error) {
	if p == nil {
		return nil, errors.New("presence: param getter must not be nil")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, errors.New("presence: parameter prefix must not be empty")
	}
	return &ParamSource{params: p, prefix: prefix}, nil
}

func (s *ParamSource) Settings(ctx context.Context) (Settings, error) {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		return s.settings, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.settings, nil
	}

	settings, err := s.load(ctx)
	if err != nil {
		return Settings{}, err
	}
	s.settings = settings
	s.loaded = true
	return settings, nil
}

func (s *ParamSource) load(ctx context.Context) (Settings, error) {
	names := []string{
		s.prefix + paramSessionTimeout,
		s.prefix + paramNetworkLatency,
		s.prefix + paramUpdateInterval,
	}
	vals, err := s.params.GetParameters(ctx, names)
	if err != nil {
		return Settings{}, fmt.Errorf("presence: load settings: %w", err)
	}

	var errs error
	millis := func(name string) time.Duration {
		raw, ok := vals[name]
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("missing parameter %q", name))
			return 0
		}
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("parameter %q: %w", name, err))
			return 0
		}
		return time.Duration(n) * time.Millisecond
	}
	settings := Settings{
		SessionTimeout: millis(names[0]),
		NetworkLatency: millis(names[1]),
		UpdateInterval: millis(names[2]),
	}
	if errs != nil {
		return Settings{}, fmt.Errorf("presence: load settings: %w", errs)
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}
