package redisad

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"reviewpulse/internal/domain"
)

// markSynced stores ARGV[1] (unix millis) unless a later value is present.
var markSynced = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1])
return 1
`)

// Windows is a domain.WindowStore for deployments that share Redis but
// not a database between sync workers.
type Windows struct{ c *redis.Client }

func NewWindows(c *redis.Client) *Windows { return &Windows{c: c} }

func windowKey(businessID string, p domain.Platform) string {
	return "syncwin:" + businessID + ":" + string(p)
}

func (w *Windows) LastSynced(ctx context.Context, businessID string, p domain.Platform) (time.Time, bool, error) {
	v, err := w.c.Get(ctx, windowKey(businessID, p)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

func (w *Windows) MarkSynced(ctx context.Context, businessID string, p domain.Platform, at time.Time) error {
	return markSynced.Run(ctx, w.c, []string{windowKey(businessID, p)}, at.UnixMilli()).Err()
}
