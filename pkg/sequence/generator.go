package sequence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"wellnest-affiliate/pkg/rediskey"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Generator hands out human-readable codes backed by redis counters. Coupon
// codes are prefixed per creator so support can identify the owner at a glance.
type Generator interface {
	NextCouponCode(ctx context.Context, creatorHandle string) (string, error)
	NextPayoutCode(ctx context.Context) (string, error)
}

type RedisGenerator struct {
	rdb *redis.Client
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
	}
}

func (g *RedisGenerator) NextCouponCode(ctx context.Context, creatorHandle string) (string, error) {
	handle := sanitizeHandle(creatorHandle)
	key := rediskey.NamespaceKey(rediskey.CouponSeqPrefix, handle)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}

	if seq == 1 {
		return handle, nil
	}
	return fmt.Sprintf("%s%d", handle, seq), nil
}

func (g *RedisGenerator) NextPayoutCode(ctx context.Context) (string, error) {
	today := time.Now().UTC().Format("060102")
	key := rediskey.NamespaceKey(rediskey.PayoutSeqPrefix, today)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}

	if seq == 1 {
		expire := time.Until(time.Now().Truncate(24 * time.Hour).Add(24*time.Hour - time.Second))
		_ = g.rdb.Expire(ctx, key, expire).Err()
	}

	return payoutCode(today, seq), nil
}

// payoutCode renders PO-<yymmdd>-<seq> with the sequence in base 36, zero
// padded to three characters so same-day codes sort.
func payoutCode(day string, seq int64) string {
	encoded := strings.ToUpper(strconv.FormatInt(seq, 36))
	if len(encoded) < 3 {
		encoded = strings.Repeat("0", 3-len(encoded)) + encoded
	}
	return fmt.Sprintf("PO-%s-%s", day, encoded)
}

func sanitizeHandle(handle string) string {
	cleaned := strings.Builder{}
	for _, r := range strings.ToUpper(handle) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			cleaned.WriteRune(r)
		}
	}
	if cleaned.Len() == 0 {
		return "CREATOR"
	}
	return cleaned.String()
}
