package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// CheckoutState 对应 Redis 内缓存的支付会话。
type CheckoutState struct {
	SessionID string
	URL       string
}

// CheckoutStore 以「订单 + 幂等键」缓存已创建的支付会话，重复请求直接复用。
type CheckoutStore struct {
	rdb *rd.Client
	ttl time.Duration
}

func NewCheckoutStore(rdb *rd.Client, ttl time.Duration) *CheckoutStore {
	return &CheckoutStore{rdb: rdb, ttl: ttl}
}

// Get found=false 表示 key 不存在。
func (s *CheckoutStore) Get(ctx context.Context, orderID uint, idemKey string) (CheckoutState, bool, error) {
	key := CheckoutIdempotencyKey(orderID, idemKey)
	m, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return CheckoutState{}, false, err
	}
	if len(m) == 0 || m["session_id"] == "" {
		return CheckoutState{}, false, nil
	}
	return CheckoutState{SessionID: m["session_id"], URL: m["url"]}, true, nil
}

// Put 写入会话并刷新 TTL。
func (s *CheckoutStore) Put(ctx context.Context, orderID uint, idemKey string, st CheckoutState) error {
	key := CheckoutIdempotencyKey(orderID, idemKey)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"session_id", st.SessionID,
		"url", st.URL,
	)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
