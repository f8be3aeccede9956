package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/bookkeeping/internal/config"
)

const keyAccountLock = "ledger:lock:%s:%s"

const pollInterval = 10 * time.Millisecond

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// ErrLockNotAcquired is returned when an account lock is still held by another poster
// after the wait budget is spent.
var ErrLockNotAcquired = errors.New("account_lock_not_acquired")

type Locker struct {
	client *redis.Client
	script *redis.Script
}

// NewRedisClient returns nil when no Redis address is configured.
func NewRedisClient(cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}

type heldKey struct {
	key   string
	token string
}

// Held is a set of account locks taken by LockAccounts.
type Held struct {
	locker *Locker
	keys   []heldKey
}

// Release frees the locks in reverse acquisition order. It is safe on a nil Held.
func (h *Held) Release(ctx context.Context) error {
	if h == nil {
		return nil
	}
	var errs []error
	for i := len(h.keys) - 1; i >= 0; i-- {
		if err := h.locker.Release(ctx, h.keys[i].key, h.keys[i].token); err != nil {
			errs = append(errs, err)
		}
	}
	h.keys = nil
	return errors.Join(errs...)
}

// LockAccounts takes one lock per account in ascending id order, polling each key until
// wait elapses. On failure every lock already taken is released.
func (l *Locker) LockAccounts(ctx context.Context, tenantID snowflake.ID, ids []snowflake.ID, ttl, wait time.Duration) (*Held, error) {
	if l == nil {
		return nil, nil
	}

	sorted := uniqueSorted(ids)
	held := &Held{locker: l, keys: make([]heldKey, 0, len(sorted))}
	deadline := time.Now().Add(wait)

	for _, id := range sorted {
		key := fmt.Sprintf(keyAccountLock, tenantID.String(), id.String())
		token, err := l.acquire(ctx, key, ttl, deadline)
		if err != nil {
			_ = held.Release(context.WithoutCancel(ctx))
			return nil, err
		}
		held.keys = append(held.keys, heldKey{key: key, token: token})
	}
	return held, nil
}

func (l *Locker) acquire(ctx context.Context, key string, ttl time.Duration, deadline time.Time) (string, error) {
	for {
		token, ok, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		if !time.Now().Before(deadline) {
			return "", ErrLockNotAcquired
		}

		timer := time.NewTimer(pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

func uniqueSorted(ids []snowflake.ID) []snowflake.ID {
	seen := make(map[snowflake.ID]struct{}, len(ids))
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
