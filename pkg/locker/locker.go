package locker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("locker",
	fx.Provide(New),
)

// ErrNotObtained reports that the lock is held elsewhere. Callers should
// treat it as transient and retry.
var ErrNotObtained = errors.New("locker: lock not obtained")

// releaseScript deletes the lock only when it still holds our token, so an
// expired lock re-acquired by another holder is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker provides exclusive, TTL-bounded locks backed by redis SET NX PX.
type Locker struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb}
}

// WithLock runs fn while holding an exclusive lock on key. Acquisition is
// retried a few times with backoff before giving up with ErrNotObtained.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	token, err := randomToken()
	if err != nil {
		return err
	}

	obtained := false
	for attempt := 0; attempt < 3; attempt++ {
		ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			obtained = true
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}

	if !obtained {
		return ErrNotObtained
	}

	defer func() {
		if _, err := releaseScript.Run(context.WithoutCancel(ctx), l.rdb, []string{key}, token).Result(); err != nil {
			zap.L().Warn("failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}()

	return fn(ctx)
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
