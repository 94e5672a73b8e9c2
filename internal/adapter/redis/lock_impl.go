package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pazars/grabeklis/internal/repository"
	"github.com/pazars/grabeklis/pkg/utils"
)

const (
	runLockPrefix  = "grabeklis:lock:"
	defaultLockTTL = 6 * time.Hour
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLockImpl implements repository.RunLock with SET NX PX.
type RunLockImpl struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

var _ repository.RunLock = (*RunLockImpl)(nil)

// NewRunLock creates a lock for the spider directory dir. A ttl <= 0 uses six
// hours, after which a crashed holder's lock expires.
func NewRunLock(client *redis.Client, dir string, ttl time.Duration) *RunLockImpl {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RunLockImpl{
		client: client,
		key:    generateKey(dir),
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// generateKey creates a consistent Redis key for a directory by hashing it.
func generateKey(dir string) string {
	return fmt.Sprintf("%s%s", runLockPrefix, utils.HashURL(dir))
}

// Key returns the Redis key guarded by the lock.
func (l *RunLockImpl) Key() string {
	return l.key
}

// Acquire sets the key if it does not exist yet.
func (l *RunLockImpl) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire redis lock %s: %w", l.key, err)
	}
	if !ok {
		return fmt.Errorf("%w: redis key %s", repository.ErrLocked, l.key)
	}
	return nil
}

// Release removes the key if this instance still owns it.
func (l *RunLockImpl) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release redis lock %s: %w", l.key, err)
	}
	return nil
}
