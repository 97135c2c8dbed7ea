package redis

import (
	"fmt"
	"strings"
)

// OrderLockKey 订单级互斥锁，串行化同一订单的并发回调。
func OrderLockKey(orderID uint) string {
	return fmt.Sprintf("restaurant_orders:order:lock:%d", orderID)
}

// CheckoutIdempotencyKey 将客户端幂等键映射到已创建的支付会话。
func CheckoutIdempotencyKey(orderID uint, idemKey string) string {
	return fmt.Sprintf("restaurant_orders:idem:checkout:%d:%s", orderID, idemKey)
}

// RateLimitCustomerKey 按顾客邮箱限流下单接口。
func RateLimitCustomerKey(email string) string {
	return fmt.Sprintf("rate_limit:orders:email:%s", strings.ToLower(strings.TrimSpace(email)))
}

// RateLimitIPKey 无法识别顾客时按 IP 降级限流。
func RateLimitIPKey(ip string) string {
	return fmt.Sprintf("rate_limit:orders:ip:%s", ip)
}
