package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

// luaReleaseIfMatch 仅当锁值匹配本次 token 时才删除，避免误删其他请求的锁。
const luaReleaseIfMatch = `
local lockKey = KEYS[1]
local token = ARGV[1]
if redis.call('GET', lockKey) == token then
  return redis.call('DEL', lockKey)
end
return 0
`

// ErrLockTimeout 在等待期限内没有拿到锁。
var ErrLockTimeout = errors.New("order lock: wait timed out")

// OrderLock 基于 SET NX PX 的订单级分布式锁。
// TTL 兜底进程崩溃后锁自动释放；等待上限由调用方 ctx 决定。
type OrderLock struct {
	rdb   *rd.Client
	ttl   time.Duration
	retry time.Duration
}

func NewOrderLock(rdb *rd.Client, ttl time.Duration) *OrderLock {
	return &OrderLock{rdb: rdb, ttl: ttl, retry: 25 * time.Millisecond}
}

// Lock 阻塞直到拿到 orderID 的锁或 ctx 结束，返回释放函数。
func (l *OrderLock) Lock(ctx context.Context, orderID uint) (func(), error) {
	key := OrderLockKey(orderID)
	token := uuid.NewString()

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
			}
			return nil, err
		}
		if ok {
			return func() { _ = l.release(key, token) }, nil
		}

		t := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
		case <-t.C:
		}
	}
}

// release 使用独立 ctx：请求被取消时仍要尽力归还锁。
func (l *OrderLock) release(key, token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := l.rdb.Eval(ctx, luaReleaseIfMatch, []string{key}, token).Int()
	return err
}
