package configdb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/newtron-network/evc/pkg/evc/config"
	"github.com/newtron-network/evc/pkg/evc/device"
	"github.com/newtron-network/evc/pkg/util"
)

// nullField marks an entry that exists without fields.
const nullField = "NULL"

// Executor opens structured-config sessions on mounted devices.
type Executor struct {
	Registry *Registry
	LockTTL  time.Duration

	// Holder names the lock owner; a random one is used per session when empty.
	Holder string
}

// NewExecutor creates an executor over registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{Registry: registry, LockTTL: DefaultLockTTL}
}

// Open implements device.Executor.
func (e *Executor) Open(ctx context.Context, name string) (device.Session, error) {
	return e.Connect(ctx, name)
}

// Connect mounts the device and takes its lock for the session.
func (e *Executor) Connect(ctx context.Context, name string) (*Session, error) {
	m, err := e.Registry.Mount(ctx, name)
	if err != nil {
		return nil, err
	}
	holder := e.Holder
	if holder == "" {
		holder = "evc-" + uuid.NewString()
	}
	if err := m.acquireLock(ctx, holder, e.LockTTL); err != nil {
		return nil, err
	}
	util.WithDevice(name).Debugf("lock acquired by %s", holder)
	return &Session{mount: m, holder: holder}, nil
}

// Session is one request's access to a mounted device.
type Session struct {
	mount  *Mount
	holder string
	closed bool
}

// Device implements device.Session.
func (s *Session) Device() string { return s.mount.Device }

// Close releases the device lock. The mount stays registered.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.mount.releaseLock(ctx, s.holder)
}

// Undo holds the pre-images of every key a transaction touched. A nil
// pre-image means the key did not exist.
type Undo struct {
	Device string
	keys   []string
	before map[string]map[string]string
}

// Keys returns the touched redis keys in first-touch order.
func (u *Undo) Keys() []string {
	if u == nil {
		return nil
	}
	return append([]string(nil), u.keys...)
}

// IsEmpty reports whether there is nothing to restore.
func (u *Undo) IsEmpty() bool {
	return u == nil || len(u.keys) == 0
}

func redisKey(table, key string) string {
	return table + config.KeySeparator + key
}

// Get reads one entry.
func (s *Session) Get(ctx context.Context, table, key string) (map[string]string, bool, error) {
	vals, err := s.mount.config.HGetAll(ctx, redisKey(table, key)).Result()
	if err != nil {
		return nil, false, &util.TransportError{Device: s.Device(), Operation: "read " + redisKey(table, key), Err: err}
	}
	if len(vals) == 0 {
		return nil, false, nil
	}
	delete(vals, nullField)
	return vals, true, nil
}

// Scan reads every entry of table, keyed by entry key.
func (s *Session) Scan(ctx context.Context, table string) (map[string]map[string]string, error) {
	keys, err := scanKeys(ctx, s.mount.config, escapeGlob(table)+config.KeySeparator+"*", 100)
	if err != nil {
		return nil, &util.TransportError{Device: s.Device(), Operation: "scan " + table, Err: err}
	}
	out := make(map[string]map[string]string, len(keys))
	for _, k := range keys {
		vals, err := s.mount.config.HGetAll(ctx, k).Result()
		if err != nil {
			return nil, &util.TransportError{Device: s.Device(), Operation: "read " + k, Err: err}
		}
		delete(vals, nullField)
		out[strings.TrimPrefix(k, table+config.KeySeparator)] = vals
	}
	return out, nil
}

// Send applies delta in one MULTI/EXEC transaction: subtree deletions first,
// then merges. Merges add or overwrite fields; existing fields not named in
// an entry are kept. The returned Undo restores the previous state.
func (s *Session) Send(ctx context.Context, delta *config.Delta) (*Undo, error) {
	if delta.IsEmpty() {
		return &Undo{Device: s.Device()}, nil
	}
	if delta.Device != s.Device() {
		return nil, fmt.Errorf("delta for %s sent to %s", delta.Device, s.Device())
	}

	var deleted []string
	for _, st := range delta.Delete {
		keys, err := s.subtreeKeys(ctx, st)
		if err != nil {
			return nil, err
		}
		deleted = append(deleted, keys...)
	}
	merged := make([]string, len(delta.Merge))
	for i, e := range delta.Merge {
		merged[i] = redisKey(e.Table, e.Key)
	}

	undo, err := s.snapshot(ctx, append(append([]string(nil), deleted...), merged...))
	if err != nil {
		return nil, err
	}

	pipe := s.mount.config.TxPipeline()
	for _, k := range deleted {
		pipe.Del(ctx, k)
	}
	for i, e := range delta.Merge {
		hset(ctx, pipe, merged[i], e.Fields)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, &util.TransportError{Device: s.Device(), Operation: "commit transaction", Err: err}
	}

	util.WithDevice(s.Device()).Infof("committed %d deletions and %d merges", len(deleted), len(delta.Merge))
	return undo, nil
}

// Restore puts every key recorded in undo back to its pre-image in one
// transaction.
func (s *Session) Restore(ctx context.Context, undo *Undo) error {
	if undo.IsEmpty() {
		return nil
	}
	if undo.Device != s.Device() {
		return fmt.Errorf("undo for %s applied to %s", undo.Device, s.Device())
	}

	pipe := s.mount.config.TxPipeline()
	for _, k := range undo.keys {
		pipe.Del(ctx, k)
		if before := undo.before[k]; before != nil {
			hset(ctx, pipe, k, before)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return &util.TransportError{Device: s.Device(), Operation: "restore transaction", Err: err}
	}
	util.WithDevice(s.Device()).Infof("restored %d keys", len(undo.keys))
	return nil
}

// Preview returns the redis keys delta would delete and write, without
// changing anything.
func (s *Session) Preview(ctx context.Context, delta *config.Delta) (deletes, writes []string, err error) {
	for _, st := range delta.Delete {
		keys, err := s.subtreeKeys(ctx, st)
		if err != nil {
			return nil, nil, err
		}
		deletes = append(deletes, keys...)
	}
	for _, e := range delta.Merge {
		writes = append(writes, redisKey(e.Table, e.Key))
	}
	return deletes, writes, nil
}

func (s *Session) subtreeKeys(ctx context.Context, st config.Subtree) ([]string, error) {
	root := redisKey(st.Table, st.Key)
	keys, err := scanKeys(ctx, s.mount.config, escapeGlob(root)+config.KeySeparator+"*", 100)
	if err != nil {
		return nil, &util.TransportError{Device: s.Device(), Operation: "scan " + root, Err: err}
	}
	n, err := s.mount.config.Exists(ctx, root).Result()
	if err != nil {
		return nil, &util.TransportError{Device: s.Device(), Operation: "read " + root, Err: err}
	}
	sort.Strings(keys)
	if n > 0 {
		keys = append(keys, root)
	}
	return keys, nil
}

func (s *Session) snapshot(ctx context.Context, keys []string) (*Undo, error) {
	undo := &Undo{Device: s.Device(), before: make(map[string]map[string]string)}
	for _, k := range keys {
		if _, seen := undo.before[k]; seen {
			continue
		}
		vals, err := s.mount.config.HGetAll(ctx, k).Result()
		if err != nil {
			return nil, &util.TransportError{Device: s.Device(), Operation: "read " + k, Err: err}
		}
		if len(vals) == 0 {
			vals = nil
		}
		undo.keys = append(undo.keys, k)
		undo.before[k] = vals
	}
	return undo, nil
}

func hset(ctx context.Context, pipe redis.Pipeliner, key string, fields map[string]string) {
	if len(fields) == 0 {
		pipe.HSet(ctx, key, nullField, nullField)
		return
	}
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	pipe.HSet(ctx, key, args...)
}

// scanKeys collects keys matching pattern with cursor-based SCAN.
func scanKeys(ctx context.Context, client *redis.Client, pattern string, countHint int64) ([]string, error) {
	var cursor uint64
	var keys []string
	for {
		batch, next, err := client.Scan(ctx, cursor, pattern, countHint).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
