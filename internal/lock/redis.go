package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker hands out non-blocking, expiring locks. ok is false when the key is
// already held.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (Lock, bool, error)
}

type Lock interface {
	Unlock(ctx context.Context) error
}

type RedisLocker struct {
	client *redis.Client
}

type RedisLock struct {
	client *redis.Client
	key    string
	token  string
}

var _ Locker = (*RedisLocker)(nil)

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (r *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Lock, bool, error) {
	token, err := newToken()
	if err != nil {
		return nil, false, err
	}
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &RedisLock{client: r.client, key: key, token: token}, true, nil
}

func (l *RedisLock) Unlock(ctx context.Context) error {
	const script = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.token).Result()
	return err
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	_, err := rand.Read(buf)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
