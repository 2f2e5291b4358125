package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// The window opens on the first increment so a burst cannot straddle two
// aligned windows.
var incrWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RedisWindow is Window with its counters in Redis, shared by every replica.
type RedisWindow struct {
	Name string
	Max  int
	Size time.Duration
	rdb  redis.Scripter
}

func NewRedisWindow(rdb redis.Scripter, name string, max int, size time.Duration) *RedisWindow {
	return &RedisWindow{Name: name, Max: max, Size: size, rdb: rdb}
}

func (w *RedisWindow) Allow(ctx context.Context, id string) (bool, error) {
	key := fmt.Sprintf("otbox:ratelimit:%s:%s", w.Name, id)

	n, err := incrWindow.Run(ctx, w.rdb, []string{key}, w.Size.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("incrementing window %s: %w", key, err)
	}

	return n <= int64(w.Max), nil
}
