package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrTimeout = errors.New("lock: timed out waiting for lock")

// Locker serializes work per key. The returned func releases the lock.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// LocalLocker serializes within one process. A key's slot lives only while
// someone holds or waits for it.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				l.leave(key, s)
			})
		}, nil
	case <-ctx.Done():
		l.leave(key, s)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) leave(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`

// RedisLocker holds a SET NX lease per key so several replicas serialize on it.
type RedisLocker struct {
	client   redis.Cmdable
	log      *zap.Logger
	prefix   string
	ttl      time.Duration
	wait     time.Duration
	retry    time.Duration
	newToken func() string
}

func NewRedis(client redis.Cmdable, log *zap.Logger, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client:   client,
		log:      log.Named("lock"),
		prefix:   "paycore:lock:",
		ttl:      ttl,
		wait:     5 * time.Second,
		retry:    50 * time.Millisecond,
		newToken: uuid.NewString,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := l.newToken()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() { l.release(redisKey, token) }, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

func (l *RedisLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		l.log.Warn("lock release failed", zap.String("key", key), zap.Error(err))
	}
}
