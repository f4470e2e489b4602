package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

var ErrRateUnavailable = errors.New("exchange rate unavailable")

// RateProvider quotes how many units of to one unit of from buys at asOf.
type RateProvider interface {
	Rate(ctx context.Context, from, to string, asOf time.Time) (decimal.Decimal, error)
}

// RedisRateProvider reads rates published by the FX feed. Daily snapshots live
// under fx:<from>:<to>:<yyyy-mm-dd>; fx:<from>:<to> holds the latest quote.
type RedisRateProvider struct {
	client *redis.Client
}

func NewRedisRateProvider(client *redis.Client) *RedisRateProvider {
	return &RedisRateProvider{client: client}
}

func (p *RedisRateProvider) Rate(ctx context.Context, from, to string, asOf time.Time) (decimal.Decimal, error) {
	from, to = strings.ToLower(from), strings.ToLower(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	keys := []string{
		fmt.Sprintf("fx:%s:%s:%s", from, to, asOf.UTC().Format(time.DateOnly)),
		fmt.Sprintf("fx:%s:%s", from, to),
	}
	for _, key := range keys {
		raw, err := p.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to read rate %s: %w", key, err)
		}
		return parseRate(from, to, raw)
	}
	return decimal.Zero, fmt.Errorf("%w: %s->%s", ErrRateUnavailable, from, to)
}

func parseRate(from, to, raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse rate %s->%s: %w", from, to, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive rate %s->%s", ErrRateUnavailable, from, to)
	}
	return rate, nil
}

// StaticRateProvider serves fixed rates keyed "<from>:<to>".
type StaticRateProvider map[string]decimal.Decimal

func (p StaticRateProvider) Rate(_ context.Context, from, to string, _ time.Time) (decimal.Decimal, error) {
	from, to = strings.ToLower(from), strings.ToLower(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if rate, ok := p[from+":"+to]; ok {
		return rate, nil
	}
	if rate, ok := p[to+":"+from]; ok && rate.IsPositive() {
		return decimal.NewFromInt(1).DivRound(rate, 12), nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s->%s", ErrRateUnavailable, from, to)
}
