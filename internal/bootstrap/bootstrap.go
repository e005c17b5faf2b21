// Package bootstrap wires the remote presence store and settings source
// selected by configuration.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"gh-presence/internal/config"
	"gh-presence/internal/integrations/paramstore"
	"gh-presence/internal/presence"
	"gh-presence/internal/repository"
)

// Remote holds the presence store and the settings source backing it.
type Remote struct {
	Store    presence.Store
	Settings presence.SettingsSource
	closers  []func() error
}

func (r *Remote) Close() error {
	var err error
	for _, c := range r.closers {
		err = multierr.Append(err, c())
	}
	return err
}

// NewRemote loads the AWS configuration and opens the configured store.
func NewRemote(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Remote, error) {
	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load AWS config: %w", err)
	}
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	settings, err := presence.NewParamSource(params, cfg.Params.Prefix)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	r := &Remote{Settings: settings}
	switch cfg.Store.Backend {
	case config.BackendRedis:
		url := cfg.Store.RedisURL
		if url == "" {
			if url, err = params.GetParameter(ctx, cfg.Store.RedisURLParam); err != nil {
				return nil, fmt.Errorf("bootstrap: redis url: %w", err)
			}
		}
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		store, err := repository.NewRedis(rdb, redisTTL(ctx, settings, logger), repository.WithRedisLogger(logger))
		if err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		r.Store = store
		r.closers = append(r.closers, rdb.Close)
	default:
		store, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.Store.Table, cfg.Store.Index,
			repository.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		r.Store = store
	}

	logger.Info("presence store ready",
		zap.String("backend", cfg.Store.Backend),
		zap.String("params_prefix", cfg.Params.Prefix),
	)
	return r, nil
}

// redisTTL keeps abandoned records for two session timeouts so a record is
// never evicted while it can still count as live.
func redisTTL(ctx context.Context, src presence.SettingsSource, logger *zap.Logger) time.Duration {
	s, err := src.Settings(ctx)
	if err != nil {
		logger.Warn("presence settings unavailable, sizing redis ttl from defaults", zap.Error(err))
		s = presence.DefaultSettings()
	}
	return 2 * s.SessionTimeout
}
