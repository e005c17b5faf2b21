package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gh-presence/internal/config"
	"gh-presence/internal/presence"
)

type failingSource struct{}

func (failingSource) Settings(context.Context) (presence.Settings, error) {
	return presence.Settings{}, errors.New("ssm unavailable")
}

func TestRedisTTL(t *testing.T) {
	src := presence.StaticSource(presence.Settings{
		SessionTimeout: 30 * time.Second,
		NetworkLatency: time.Second,
		UpdateInterval: time.Second,
	})
	require.Equal(t, time.Minute, redisTTL(context.Background(), src, zap.NewNop()))
	require.Equal(t, 2*presence.DefaultSettings().SessionTimeout, redisTTL(context.Background(), failingSource{}, zap.NewNop()))
}

func TestNewRemote_ValidatesStoreConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Backend = config.BackendRedis
	_, err := NewRemote(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "redis_url")
}

func TestRemote_CloseJoinsErrors(t *testing.T) {
	r := &Remote{closers: []func() error{
		func() error { return errors.New("first") },
		func() error { return nil },
		func() error { return errors.New("second") },
	}}
	err := r.Close()
	require.ErrorContains(t, err, "first")
	require.ErrorContains(t, err, "second")
}
