package rediskey

import "fmt"

// Key namespaces shared across the affiliate services.
const (
	CouponSeqPrefix = "seq:coupon"
	PayoutSeqPrefix = "seq:payout"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}
