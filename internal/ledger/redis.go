package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Reset atomically:
// KEYS[1] = unread hash of the user (conversationID -> count)
// KEYS[2] = read-at hash of the user (conversationID -> unix millis)
// ARGV[1] = conversationID
// ARGV[2] = read time in unix millis
// returns 1 when the count was positive or no marker existed, else 0
var luaReset = redis.NewScript(`
local prev = redis.call("HGET", KEYS[1], ARGV[1])
local seen = redis.call("HGET", KEYS[2], ARGV[1])
redis.call("HSET", KEYS[1], ARGV[1], 0)
if (not seen) or tonumber(seen) < tonumber(ARGV[2]) then
  redis.call("HSET", KEYS[2], ARGV[1], ARGV[2])
end
if (not seen) or (prev and tonumber(prev) > 0) then
  return 1
end
return 0
`)

// RedisBackend keeps counters in one hash per user, so HINCRBY gives atomic
// increments and HGETALL returns the whole snapshot in one round trip.
type RedisBackend struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisBackend returns a backend storing keys under prefix.
func NewRedisBackend(rdb redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "pawchat"
	}
	return &RedisBackend{rdb: rdb, prefix: prefix}
}

func (b *RedisBackend) unreadKey(userID string) string {
	return fmt.Sprintf("%s:unread:{%s}", b.prefix, userID)
}

// readAtKey shares the hash tag with unreadKey so the Lua script touches a
// single cluster slot.
func (b *RedisBackend) readAtKey(userID string) string {
	return fmt.Sprintf("%s:readat:{%s}", b.prefix, userID)
}

func (b *RedisBackend) Increment(ctx context.Context, userID, conversationID string) (int64, error) {
	n, err := b.rdb.HIncrBy(ctx, b.unreadKey(userID), conversationID, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("increment unread: %w", err)
	}
	return n, nil
}

func (b *RedisBackend) Reset(ctx context.Context, userID, conversationID string, at time.Time) (bool, error) {
	keys := []string{b.unreadKey(userID), b.readAtKey(userID)}
	changed, err := luaReset.Run(ctx, b.rdb, keys, conversationID, at.UnixMilli()).Int()
	if err != nil {
		return false, fmt.Errorf("reset unread: %w", err)
	}
	return changed == 1, nil
}

func (b *RedisBackend) Counts(ctx context.Context, userID string) (map[string]int64, error) {
	raw, err := b.rdb.HGetAll(ctx, b.unreadKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read unread counts: %w", err)
	}
	out := make(map[string]int64, len(raw))
	for conv, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse unread count for %s: %w", conv, err)
		}
		out[conv] = n
	}
	return out, nil
}

// LastReadAt returns the read marker of a user in a conversation.
func (b *RedisBackend) LastReadAt(ctx context.Context, userID, conversationID string) (time.Time, bool, error) {
	v, err := b.rdb.HGet(ctx, b.readAtKey(userID), conversationID).Int64()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(v).UTC(), true, nil
}
