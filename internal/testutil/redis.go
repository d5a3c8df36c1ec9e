package testutil

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

// Tables is the seed format: { "TABLE": { "key": { "field": "value" } } }.
type Tables map[string]map[string]map[string]string

// StartRedis starts an in-process redis server that is stopped when the test
// ends.
func StartRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	return miniredis.RunT(t)
}

// SeedRedis writes tables into database db. Each entry becomes a hash at
// "TABLE|key"; entries without fields get the NULL placeholder.
func SeedRedis(t *testing.T, addr string, db int, tables Tables) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()

	ctx := context.Background()
	for table, entries := range tables {
		for key, fields := range entries {
			redisKey := table + "|" + key
			if len(fields) == 0 {
				if err := client.HSet(ctx, redisKey, "NULL", "NULL").Err(); err != nil {
					t.Fatalf("seeding %s: %v", redisKey, err)
				}
				continue
			}
			args := make([]interface{}, 0, len(fields)*2)
			for k, v := range fields {
				args = append(args, k, v)
			}
			if err := client.HSet(ctx, redisKey, args...).Err(); err != nil {
				t.Fatalf("seeding %s: %v", redisKey, err)
			}
		}
	}
}

// SeedRedisFile loads a JSON seed file into database db.
func SeedRedisFile(t *testing.T, addr string, db int, seedFile string) {
	t.Helper()

	data, err := os.ReadFile(seedFile)
	if err != nil {
		t.Fatalf("reading seed file %s: %v", seedFile, err)
	}
	var tables Tables
	if err := json.Unmarshal(data, &tables); err != nil {
		t.Fatalf("parsing seed file %s: %v", seedFile, err)
	}
	SeedRedis(t, addr, db, tables)
}

// DumpRedis reads every hash in database db back into seed format, dropping
// NULL placeholders.
func DumpRedis(t *testing.T, addr string, db int) Tables {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()

	ctx := context.Background()
	keys, err := client.Keys(ctx, "*").Result()
	if err != nil {
		t.Fatalf("listing keys: %v", err)
	}
	out := make(Tables)
	for _, k := range keys {
		table, key, ok := cut(k)
		if !ok {
			continue
		}
		vals, err := client.HGetAll(ctx, k).Result()
		if err != nil {
			t.Fatalf("reading %s: %v", k, err)
		}
		delete(vals, "NULL")
		if out[table] == nil {
			out[table] = make(map[string]map[string]string)
		}
		out[table][key] = vals
	}
	return out
}

func cut(redisKey string) (table, key string, ok bool) {
	for i := 0; i < len(redisKey); i++ {
		if redisKey[i] == '|' {
			return redisKey[:i], redisKey[i+1:], true
		}
	}
	return "", "", false
}
