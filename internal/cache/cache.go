// Package cache keeps the latest attestation record per agent in Redis so
// reads skip Postgres.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MikeSquared-Agency/vouch/internal/store"
)

const keyPrefix = "vouch:attestation:"

// setIfNewer writes ARGV[1] unless the cached record already carries a
// version >= ARGV[2]. ARGV[3] is the TTL in milliseconds, 0 for none.
var setIfNewer = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, doc = pcall(cjson.decode, cur)
  if ok and type(doc) == 'table' and type(doc.attestation) == 'table' then
    local v = tonumber(doc.attestation.version)
    if v and v >= tonumber(ARGV[2]) then
      return 0
    end
  end
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ttl)
else
  redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects to the Redis server at url (redis:// or rediss://) and pings it.
func New(ctx context.Context, url string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 3 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping (%s): %w", opts.Addr, err)
	}
	return NewWithClient(rdb, ttl), nil
}

// NewWithClient wraps an existing client. A non-positive ttl stores entries
// without expiry.
func NewWithClient(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

func Key(agentID string) string {
	return keyPrefix + agentID
}

// Get returns the cached record for agentID. A miss is reported as ok=false
// with a nil error.
func (c *Cache) Get(ctx context.Context, agentID string) (store.AttestationRecord, bool, error) {
	raw, err := c.rdb.Get(ctx, Key(agentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.AttestationRecord{}, false, nil
	}
	if err != nil {
		return store.AttestationRecord{}, false, fmt.Errorf("redis get %s: %w", agentID, err)
	}

	var rec store.AttestationRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		// a corrupt entry is dropped and treated as a miss
		_ = c.rdb.Del(ctx, Key(agentID)).Err()
		return store.AttestationRecord{}, false, nil
	}
	return rec, true, nil
}

// Set caches rec unless an entry with the same or a newer version is already
// cached. The compare and write run as one script, so a reader refilling an
// older version never replaces a record a concurrent publish just cached.
func (c *Cache) Set(ctx context.Context, rec store.AttestationRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal cached record: %w", err)
	}
	keys := []string{Key(rec.Attestation.AgentID)}
	if err := setIfNewer.Run(ctx, c.rdb, keys, payload, rec.Attestation.Version, c.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", rec.Attestation.AgentID, err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, agentID string) error {
	if err := c.rdb.Del(ctx, Key(agentID)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", agentID, err)
	}
	return nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.rdb.Close()
}
