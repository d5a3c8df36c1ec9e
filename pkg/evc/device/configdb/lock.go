package configdb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/evc/pkg/util"
)

// LockTable holds one lock entry per device in the state database.
const LockTable = "EVC_LOCK"

// DefaultLockTTL bounds how long a crashed holder keeps a device locked.
const DefaultLockTTL = 120 * time.Second

// Returns 1 on success, 0 if already locked by another holder.
var acquireLockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 1 then
	return 0
end
redis.call("HSET", key, "holder", ARGV[1], "acquired", ARGV[2], "ttl", ARGV[3])
redis.call("EXPIRE", key, tonumber(ARGV[3]))
return 1
`)

// Returns 1 on success, 0 on holder mismatch, -1 if the lock is gone.
var releaseLockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
	return -1
end
local current = redis.call("HGET", key, "holder")
if current ~= ARGV[1] then
	return 0
end
redis.call("DEL", key)
return 1
`)

func lockKey(device string) string {
	return LockTable + "|" + device
}

// acquireLock takes the device lock for holder. It returns
// util.ErrDeviceLocked when another holder has it.
func (m *Mount) acquireLock(ctx context.Context, holder string, ttl time.Duration) error {
	secs := int(ttl / time.Second)
	if secs <= 0 {
		secs = int(DefaultLockTTL / time.Second)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := acquireLockScript.Run(ctx, m.state, []string{lockKey(m.Device)},
		holder, now, strconv.Itoa(secs)).Int()
	if err != nil {
		return fmt.Errorf("acquiring lock for %s: %w", m.Device, err)
	}
	if result == 0 {
		current, _ := m.state.HGet(ctx, lockKey(m.Device), "holder").Result()
		return fmt.Errorf("%s held by %s: %w", m.Device, current, util.ErrDeviceLocked)
	}
	return nil
}

func (m *Mount) releaseLock(ctx context.Context, holder string) error {
	result, err := releaseLockScript.Run(ctx, m.state, []string{lockKey(m.Device)}, holder).Int()
	if err != nil {
		return fmt.Errorf("releasing lock for %s: %w", m.Device, err)
	}
	if result == 0 {
		return fmt.Errorf("lock holder mismatch for %s", m.Device)
	}
	return nil
}
