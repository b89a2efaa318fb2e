package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker hands out per-key locks with SET NX and a TTL.
type Locker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewLocker returns a Locker whose keys are namespaced by prefix.
func NewLocker(client redis.UniversalClient, prefix string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{client: client, prefix: prefix, ttl: ttl}
}

// Acquire tries to take the lock for key. It returns ok=false without error
// when another holder owns it. The returned release func is safe to call
// more than once and never removes a lock taken over after expiry.
func (l *Locker) Acquire(ctx context.Context, key string) (release func(context.Context), ok bool, err error) {
	full := l.prefix + key
	token := uuid.NewString()

	ok, err = l.client.SetNX(ctx, full, token, l.ttl).Result()
	if err != nil || !ok {
		return func(context.Context) {}, false, err
	}
	return func(ctx context.Context) {
		_ = releaseScript.Run(ctx, l.client, []string{full}, token).Err()
	}, true, nil
}
