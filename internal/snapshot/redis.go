package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces snapshot keys.
const DefaultRedisPrefix = "mountainatlas:snapshot:"

// RedisCache stores snapshots in Redis hashes so several atlas instances share them.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig configures a RedisCache.
type RedisConfig struct {
	Addr     string
	Password string
	Prefix   string
	DB       int
	TTL      time.Duration // zero keeps snapshots forever
}

// OpenRedis connects to Redis and checks the connection.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is empty")
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisCache(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(location string) string {
	return c.prefix + location
}

// Put stores the snapshot.
func (c *RedisCache) Put(ctx context.Context, snap Snapshot) error {
	compressed, err := gzipCompress(snap.Data)
	if err != nil {
		return fmt.Errorf("failed to compress snapshot: %w", err)
	}

	key := c.key(snap.Location)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key,
		"checksum", snap.Checksum,
		"fetched_at", snap.FetchedAt.UnixMilli(),
		"size", len(snap.Data),
		"data", compressed)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store snapshot %s: %w", snap.Location, err)
	}
	return nil
}

// Get returns the snapshot of a location or ErrNotFound.
func (c *RedisCache) Get(ctx context.Context, location string) (*Snapshot, error) {
	fields, err := c.client.HGetAll(ctx, c.key(location)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	info, err := parseInfo(location, fields)
	if err != nil {
		return nil, err
	}
	data, err := gzipDecompress([]byte(fields["data"]))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot: %w", err)
	}

	snap := &Snapshot{
		Location:  location,
		Checksum:  info.Checksum,
		FetchedAt: info.FetchedAt,
		Data:      data,
	}
	if err := snap.Verify(); err != nil {
		return nil, err
	}
	return snap, nil
}

// List describes every stored snapshot ordered by location.
func (c *RedisCache) List(ctx context.Context) ([]Info, error) {
	var out []Info
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := c.client.HMGet(ctx, key, "checksum", "fetched_at", "size").Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		m := make(map[string]string, len(fields))
		for i, name := range []string{"checksum", "fetched_at", "size"} {
			if s, ok := fields[i].(string); ok {
				m[name] = s
			}
		}
		info, err := parseInfo(key[len(c.prefix):], m)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan snapshots: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out, nil
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func parseInfo(location string, fields map[string]string) (Info, error) {
	ms, err := strconv.ParseInt(fields["fetched_at"], 10, 64)
	if err != nil {
		return Info{}, fmt.Errorf("snapshot %s has invalid fetched_at: %w", location, err)
	}
	size, _ := strconv.ParseInt(fields["size"], 10, 64)
	return Info{
		Location:  location,
		Checksum:  fields["checksum"],
		FetchedAt: time.UnixMilli(ms).UTC(),
		Size:      size,
	}, nil
}
