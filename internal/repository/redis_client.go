package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gh-presence/internal/domain"
)

const (
	sessionKeyPrefix = "presence:session:"
	pathKeyPrefix    = "presence:path:"
)

// redisAPI is the subset of *redis.Client used by RedisClient.
type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd
	ZRemRangeByScore(ctx context.Context, key, min, max string) *redis.IntCmd
}

// RedisClient stores presence in Redis: the session record as JSON under its
// own key with an expiry, and the session ID in a per-path sorted set scored
// by update time in milliseconds.
type RedisClient struct {
	api    redisAPI
	ttl    time.Duration
	logger *zap.Logger
}

type RedisOption func(*RedisClient)

func WithRedisLogger(l *zap.Logger) RedisOption {
	return func(c *RedisClient) {
		c.logger = l
	}
}

// NewRedis creates a RedisClient. ttl bounds how long an abandoned session
// record survives; it should exceed the presence session timeout.
func NewRedis(api redisAPI, ttl time.Duration, opts ...RedisOption) (*RedisClient, error) {
	if api == nil {
		return nil, errors.New("repository: redis api must not be nil")
	}
	if ttl <= 0 {
		return nil, errors.New("repository: redis ttl must be positive")
	}
	c := &RedisClient{api: api, ttl: ttl}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c, nil
}

func sessionKey(sessionID string) string { return sessionKeyPrefix + sessionID }

func pathKey(path string) string { return pathKeyPrefix + path }

// Upsert replaces the session record and moves the session between path sets.
func (c *RedisClient) Upsert(ctx context.Context, rec domain.PresenceRecord) error {
	if rec.SessionID == "" || rec.User == "" {
		return errors.New("repository: Upsert: session ID and user are required")
	}

	prev, found, err := c.get(ctx, rec.SessionID)
	if err != nil {
		return fmt.Errorf("repository: Upsert: %w", err)
	}
	if found && prev.Path != "" && prev.Path != rec.Path {
		if err := c.api.ZRem(ctx, pathKey(prev.Path), rec.SessionID).Err(); err != nil {
			return fmt.Errorf("repository: Upsert remove from %q: %w", prev.Path, err)
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("repository: Upsert marshal: %w", err)
	}
	if err := c.api.Set(ctx, sessionKey(rec.SessionID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("repository: Upsert: %w", err)
	}

	if rec.Path == "" {
		return nil
	}
	key := pathKey(rec.Path)
	if err := c.api.ZAdd(ctx, key, redis.Z{Score: float64(rec.UpdatedAt.UnixMilli()), Member: rec.SessionID}).Err(); err != nil {
		return fmt.Errorf("repository: Upsert index: %w", err)
	}
	if err := c.api.Expire(ctx, key, c.ttl).Err(); err != nil {
		return fmt.Errorf("repository: Upsert expire index: %w", err)
	}
	return nil
}

// Query returns records on q.Path updated after q.UpdatedAfter, excluding
// q.ExcludeUser. Index entries at or before the cutoff are trimmed first.
func (c *RedisClient) Query(ctx context.Context, q domain.PresenceQuery) ([]domain.PresenceRecord, error) {
	if q.Path == "" {
		return nil, nil
	}
	key := pathKey(q.Path)
	cutoff := strconv.FormatInt(q.UpdatedAfter.UnixMilli(), 10)

	if err := c.api.ZRemRangeByScore(ctx, key, "-inf", cutoff).Err(); err != nil {
		return nil, fmt.Errorf("repository: Query trim: %w", err)
	}
	ids, err := c.api.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "(" + cutoff, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("repository: Query: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}
	vals, err := c.api.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("repository: Query load: %w", err)
	}

	recs := make([]domain.PresenceRecord, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// expired between the range read and the load
			continue
		}
		var rec domain.PresenceRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			c.logger.Warn("skipping malformed presence record",
				zap.String("session_id", ids[i]),
				zap.String("path", q.Path),
				zap.Error(err),
			)
			continue
		}
		if rec.Path != q.Path || (q.ExcludeUser != "" && rec.User == q.ExcludeUser) || !rec.UpdatedAt.After(q.UpdatedAfter) {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (c *RedisClient) get(ctx context.Context, sessionID string) (domain.PresenceRecord, bool, error) {
	data, err := c.api.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.PresenceRecord{}, false, nil
	}
	if err != nil {
		return domain.PresenceRecord{}, false, err
	}
	var rec domain.PresenceRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		// A corrupt record is overwritten by the caller.
		return domain.PresenceRecord{}, false, nil
	}
	return rec, true, nil
}
