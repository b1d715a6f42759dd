package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akylbek/payment-system/mint-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/mint-gateway/internal/models"
)

const (
	nonceKeyFmt          = "mint:nonce:%s"
	rateKeyFmt           = "mint:rate:%s"
	historyKeyFmt        = "mint:history:%s"
	historyOriginsKeyFmt = "mint:history:origins:%s"
	historyTTL           = 24 * time.Hour
)

// RedisNonceStore shares used nonces between gateway instances. Expiry is delegated
// to Redis key TTLs.
type RedisNonceStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisNonceStore(client *redis.Client, ttl time.Duration) *RedisNonceStore {
	return &RedisNonceStore{client: client, ttl: ttl}
}

func (s *RedisNonceStore) Seen(ctx context.Context, nonce string, _ time.Time) (bool, error) {
	n, err := s.client.Exists(ctx, fmt.Sprintf(nonceKeyFmt, nonce)).Result()
	if err != nil {
		return false, fmt.Errorf("nonce lookup: %w", err)
	}
	return n > 0, nil
}

func (s *RedisNonceStore) Add(ctx context.Context, nonce string, now time.Time) (bool, error) {
	ok, err := s.client.SetNX(ctx, fmt.Sprintf(nonceKeyFmt, nonce), now.UnixMilli(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("nonce record: %w", err)
	}
	return ok, nil
}

// acquireScript checks both windows and increments them only when both have room.
// Reply: {allowed, blockedBy(0 none, 1 identity, 2 origin), start, count, originStart, originCount}.
var acquireScript = redis.NewScript(`
local now = tonumber(ARGV[4])
local window = tonumber(ARGV[3])

local function load(key)
  local start = tonumber(redis.call('HGET', key, 'start'))
  local count = tonumber(redis.call('HGET', key, 'count'))
  if not start or now - start >= window then
    return now, 0
  end
  return start, count or 0
end

local idStart, idCount = load(KEYS[1])
if idCount >= tonumber(ARGV[1]) then
  return {0, 1, idStart, idCount, 0, 0}
end

local oStart, oCount = 0, 0
if ARGV[5] == '1' then
  oStart, oCount = load(KEYS[2])
  if oCount >= tonumber(ARGV[2]) then
    return {0, 2, oStart, oCount, 0, 0}
  end
  redis.call('HSET', KEYS[2], 'start', oStart, 'count', oCount + 1)
  redis.call('PEXPIRE', KEYS[2], oStart + window - now)
  oCount = oCount + 1
end

redis.call('HSET', KEYS[1], 'start', idStart, 'count', idCount + 1)
redis.call('PEXPIRE', KEYS[1], idStart + window - now)
return {1, 0, idStart, idCount + 1, oStart, oCount}
`)

// RedisRateWindowStore keeps tumbling windows in Redis hashes. Both keys are touched
// by a single script so concurrent gateways see a consistent count.
type RedisRateWindowStore struct {
	client *redis.Client
}

func NewRedisRateWindowStore(client *redis.Client) *RedisRateWindowStore {
	return &RedisRateWindowStore{client: client}
}

func (s *RedisRateWindowStore) Acquire(ctx context.Context, req interfaces.RateAcquire) (models.RateDecision, error) {
	hasOrigin := "0"
	originKey := fmt.Sprintf(rateKeyFmt, req.IdentityKey)
	if req.OriginKey != "" {
		hasOrigin = "1"
		originKey = fmt.Sprintf(rateKeyFmt, req.OriginKey)
	}
	keys := []string{fmt.Sprintf(rateKeyFmt, req.IdentityKey), originKey}
	windowMs := req.Window.Milliseconds()
	nowMs := req.Now.UnixMilli()

	res, err := acquireScript.Run(ctx, s.client, keys,
		req.IdentityLimit, req.OriginLimit, windowMs, nowMs, hasOrigin).Int64Slice()
	if err != nil {
		return models.RateDecision{}, fmt.Errorf("rate window acquire: %w", err)
	}
	if len(res) != 6 {
		return models.RateDecision{}, errors.New("rate window acquire: malformed reply")
	}

	resetAt := time.UnixMilli(res[2] + windowMs)
	if res[0] == 0 {
		by := models.LimitedByIdentity
		if res[1] == 2 {
			by = models.LimitedByOrigin
		}
		return models.RateDecision{
			Allowed:    false,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(time.UnixMilli(nowMs)),
			LimitedBy:  by,
		}, nil
	}

	remaining := req.IdentityLimit - int(res[3])
	if req.OriginKey != "" {
		if r := req.OriginLimit - int(res[5]); r < remaining {
			remaining = r
		}
		if end := time.UnixMilli(res[4] + windowMs); end.After(resetAt) {
			resetAt = end
		}
	}
	return models.RateDecision{Allowed: true, Remaining: remaining, ResetAt: resetAt}, nil
}

// RedisAttemptHistory stores attempts in a sorted set scored by unix millis, plus a
// set of origins per identity.
type RedisAttemptHistory struct {
	client *redis.Client
}

func NewRedisAttemptHistory(client *redis.Client) *RedisAttemptHistory {
	return &RedisAttemptHistory{client: client}
}

func (h *RedisAttemptHistory) Snapshot(ctx context.Context, identity, origin string, since time.Time) (models.HistorySnapshot, error) {
	key := fmt.Sprintf(historyKeyFmt, identity)
	originsKey := fmt.Sprintf(historyOriginsKeyFmt, identity)

	pipe := h.client.Pipeline()
	total := pipe.ZCard(ctx, key)
	recent := pipe.ZCount(ctx, key, "("+strconv.FormatInt(since.UnixMilli(), 10), "+inf")
	seen := pipe.SIsMember(ctx, originsKey, origin)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return models.HistorySnapshot{}, fmt.Errorf("history snapshot: %w", err)
	}

	return models.HistorySnapshot{
		RecentAttempts: int(recent.Val()),
		HasHistory:     total.Val() > 0,
		SeenFromOrigin: seen.Val(),
	}, nil
}

func (h *RedisAttemptHistory) Record(ctx context.Context, identity string, entry models.HistoryEntry) error {
	key := fmt.Sprintf(historyKeyFmt, identity)
	originsKey := fmt.Sprintf(historyOriginsKeyFmt, identity)
	member := fmt.Sprintf("%d|%s|%s", entry.Timestamp.UnixNano(), entry.Origin, entry.Amount.String())

	pipe := h.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(entry.Timestamp.UnixMilli()), Member: member})
	pipe.ZRemRangeByRank(ctx, key, 0, -int64(maxHistoryPerIdentity)-1)
	pipe.Expire(ctx, key, historyTTL)
	if entry.Origin != "" {
		pipe.SAdd(ctx, originsKey, entry.Origin)
		pipe.Expire(ctx, originsKey, historyTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("history record: %w", err)
	}
	return nil
}
