package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScript releases a lock only when the caller still owns it, so an
// expired lease taken over by another process is never released by accident.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a named, non-blocking, cross-process mutual exclusion lease held
// in Redis. The TTL guarantees release even if the holding process dies.
type Lock struct {
	key   string
	token string
	ttl   time.Duration
}

// TryAcquireLock attempts to take the named lock without blocking. It
// returns nil when another process already holds it.
func TryAcquireLock(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	ok, err := GetClient().SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &Lock{key: name, token: token, ttl: ttl}, nil
}

// Release gives the lock back. Safe to call after the lease expired.
func (l *Lock) Release(ctx context.Context) error {
	return unlockScript.Run(ctx, GetClient(), []string{l.key}, l.token).Err()
}
