package cache

import (
	"context"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ActivityStore records, per user, the last time a fetch observed an active
// subscription. The timestamp is advisory only: it bridges transient fetch
// failures and extends the entitlement grace window. It is never treated as
// authoritative over a fresh fetch. Multiple fetchers may write concurrently;
// last writer wins.
type ActivityStore interface {
	// LastActive returns the recorded timestamp for the user, if any.
	LastActive(ctx context.Context, userID string) (time.Time, bool)
	// MarkActive records that the user's subscription was seen active at t.
	MarkActive(ctx context.Context, userID string, t time.Time)
}

// retention bounds how long an entry is worth keeping. The evaluator's
// longest grace window is 30 minutes; anything older is dead weight.
const retention = time.Hour

// MemoryActivityStore keeps activity timestamps in process memory.
type MemoryActivityStore struct {
	c *gocache.Cache
}

func NewMemoryActivityStore() *MemoryActivityStore {
	return &MemoryActivityStore{
		c: gocache.New(retention, 10*time.Minute),
	}
}

func (s *MemoryActivityStore) LastActive(_ context.Context, userID string) (time.Time, bool) {
	v, ok := s.c.Get(userID)
	if !ok {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}

func (s *MemoryActivityStore) MarkActive(_ context.Context, userID string, t time.Time) {
	s.c.Set(userID, t, gocache.DefaultExpiration)
}

// RedisActivityStore shares activity timestamps across instances. Failures
// degrade to "no entry": the grace window simply does not apply.
type RedisActivityStore struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisActivityStore(client *redis.Client, logger *zap.Logger) *RedisActivityStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisActivityStore{client: client, logger: logger}
}

func (s *RedisActivityStore) key(userID string) string {
	return "entitlement:last_active:" + userID
}

func (s *RedisActivityStore) LastActive(ctx context.Context, userID string) (time.Time, bool) {
	val, err := s.client.Get(ctx, s.key(userID)).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("Activity store read failed", zap.String("userID", userID), zap.Error(err))
		}
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}

func (s *RedisActivityStore) MarkActive(ctx context.Context, userID string, t time.Time) {
	if err := s.client.Set(ctx, s.key(userID), strconv.FormatInt(t.Unix(), 10), retention).Err(); err != nil {
		s.logger.Warn("Activity store write failed", zap.String("userID", userID), zap.Error(err))
	}
}
