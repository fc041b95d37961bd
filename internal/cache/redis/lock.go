package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/coinbot/internal/domain"
)

// unlockLua deletes the lock only if it still holds the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// extendLua refreshes the TTL only if the caller still holds the lock.
const extendLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// LockManager implements domain.LockManager with SET NX and token-checked
// scripts. A held lock is refreshed in the background at a third of its TTL
// until released.
type LockManager struct {
	c        *Client
	unlockSc *redis.Script
	extendSc *redis.Script
}

// NewLockManager creates a LockManager.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		c:        c,
		unlockSc: redis.NewScript(unlockLua),
		extendSc: redis.NewScript(extendLua),
	}
}

// Acquire takes the lock for key or returns domain.ErrLockHeld.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (domain.Lock, error) {
	if ttl < 3*time.Millisecond {
		return nil, fmt.Errorf("redis: acquire lock %s: ttl %s too short", key, ttl)
	}
	token := uuid.NewString()
	lk := lm.c.Key("lock", key)

	ok, err := lm.c.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, domain.ErrLockHeld)
	}

	l := &heldLock{
		lm:    lm,
		name:  key,
		key:   lk,
		token: token,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		lost:  make(chan struct{}),
	}
	go l.refresh(ttl)
	return l, nil
}

// heldLock is a lock owned by this process.
type heldLock struct {
	lm    *LockManager
	name  string
	key   string
	token string

	stop chan struct{}
	done chan struct{}
	lost chan struct{}
	err  error // written before lost is closed

	once sync.Once
}

func (l *heldLock) Lost() <-chan struct{} { return l.lost }

func (l *heldLock) Err() error {
	select {
	case <-l.lost:
		return l.err
	default:
		return nil
	}
}

// refresh extends the TTL until stopped. The lock counts as lost when the
// token no longer matches, or when renewal has failed for long enough that
// the key may already have expired.
func (l *heldLock) refresh(ttl time.Duration) {
	defer close(l.done)
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()

	renewed := time.Now()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
		}

		attempt := time.Now()
		n, err := l.extend(ttl)
		switch {
		case err == nil && n == 1:
			renewed = attempt
			continue
		case err == nil:
			l.err = fmt.Errorf("redis: lock %s: %w", l.name, domain.ErrLockLost)
		case time.Since(renewed) < ttl/2:
			continue
		default:
			l.err = fmt.Errorf("redis: renew lock %s: %w: %w", l.name, domain.ErrLockLost, err)
		}
		close(l.lost)
		return
	}
}

func (l *heldLock) extend(ttl time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), ttl/3)
	defer cancel()
	return l.lm.extendSc.Run(ctx, l.lm.c.rdb, []string{l.key}, l.token, ttl.Milliseconds()).Int64()
}

func (l *heldLock) Release() {
	l.once.Do(func() {
		close(l.stop)
		<-l.done
		// The caller's context may already be cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.lm.unlockSc.Run(ctx, l.lm.c.rdb, []string{l.key}, l.token).Err()
	})
}

var _ domain.LockManager = (*LockManager)(nil)
