package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"rootcart/domain"
)

const (
	lastKnownKey     = "dashboard:last-known"
	lastKnownVersion = 1
)

type cachedSnapshot struct {
	Version  int             `json:"version"`
	CachedAt time.Time       `json:"cachedAt"`
	Snapshot domain.Snapshot `json:"snapshot"`
}

// LastKnown keeps the most recent complete dashboard snapshot in Redis. It is
// only read when every aggregation query has failed.
type LastKnown struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

// NewLastKnown returns a LastKnown store. A zero ttl keeps the entry forever.
func NewLastKnown(client *redis.Client, ttl time.Duration) *LastKnown {
	if client == nil {
		panic("storage.NewLastKnown: redis client is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &LastKnown{redis: client, ttl: ttl, now: time.Now}
}

func (l *LastKnown) Save(ctx context.Context, snap domain.Snapshot) error {
	data, err := sonic.Marshal(cachedSnapshot{Version: lastKnownVersion, CachedAt: l.now().UTC(), Snapshot: snap})
	if err != nil {
		return err
	}
	return l.redis.Set(ctx, lastKnownKey, data, l.ttl).Err()
}

// Load returns the stored snapshot. ok is false when nothing usable is stored.
func (l *LastKnown) Load(ctx context.Context) (domain.Snapshot, bool, error) {
	data, err := l.redis.Get(ctx, lastKnownKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Snapshot{}, false, nil
	}
	if err != nil {
		return domain.Snapshot{}, false, err
	}
	var entry cachedSnapshot
	if err := sonic.Unmarshal(data, &entry); err != nil || entry.Version != lastKnownVersion {
		_ = l.redis.Del(ctx, lastKnownKey).Err()
		return domain.Snapshot{}, false, nil
	}
	return entry.Snapshot, true, nil
}
