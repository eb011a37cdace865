// Package cache keeps per-grid column snapshots in Redis so row validation
// does not hit the database for every request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a snapshot survives without an invalidation.
const DefaultTTL = 5 * time.Minute

// ColumnCache implements core.ColumnCache using Redis.
type ColumnCache struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

var _ core.ColumnCache = (*ColumnCache)(nil)

type Option func(*ColumnCache)

// WithTTL sets the expiration for snapshots. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(c *ColumnCache) {
		c.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(c *ColumnCache) {
		c.prefix = prefix
	}
}

// New connects to Redis at address.
func New(address, password string, db int, opts ...Option) *ColumnCache {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient wraps an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *ColumnCache {
	c := &ColumnCache{
		client: client,
		prefix: "datagrid:columns:",
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ColumnCache) key(gridID uuid.UUID) string {
	return c.prefix + gridID.String()
}

// GetColumns returns the cached snapshot. ok is false on a miss.
func (c *ColumnCache) GetColumns(ctx context.Context, gridID uuid.UUID) ([]core.Column, bool, error) {
	val, err := c.client.Get(ctx, c.key(gridID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get columns from redis: %w", err)
	}

	var cols []core.Column
	if err := json.Unmarshal(val, &cols); err != nil {
		return nil, false, fmt.Errorf("unmarshal columns: %w", err)
	}
	return cols, true, nil
}

func (c *ColumnCache) genKey(gridID uuid.UUID) string {
	return c.key(gridID) + ":gen"
}

// Generation returns the grid's invalidation counter, 0 if it was never
// invalidated.
func (c *ColumnCache) Generation(ctx context.Context, gridID uuid.UUID) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey(gridID)).Int64()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("get column generation from redis: %w", err)
	}
	return gen, nil
}

// setIfCurrent writes the snapshot only while the generation still matches.
// KEYS: snapshot, generation. ARGV: expected generation, payload, ttl ms.
var setIfCurrent = backend.NewScript(`
local cur = redis.call('GET', KEYS[2]) or '0'
if cur ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// SetColumns stores a snapshot loaded while the grid was at generation gen.
// If Invalidate ran since, the snapshot may predate the change and is
// dropped.
func (c *ColumnCache) SetColumns(ctx context.Context, gridID uuid.UUID, gen int64, columns []core.Column) error {
	if columns == nil {
		columns = []core.Column{}
	}
	data, err := json.Marshal(columns)
	if err != nil {
		return fmt.Errorf("marshal columns: %w", err)
	}
	keys := []string{c.key(gridID), c.genKey(gridID)}
	if err := setIfCurrent.Run(ctx, c.client, keys, strconv.FormatInt(gen, 10), data, c.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("save columns to redis: %w", err)
	}
	return nil
}

// Invalidate advances the grid's generation and drops its snapshot.
func (c *ColumnCache) Invalidate(ctx context.Context, gridID uuid.UUID) error {
	_, err := c.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.Incr(ctx, c.genKey(gridID))
		pipe.Del(ctx, c.key(gridID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate columns in redis: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (c *ColumnCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (c *ColumnCache) Close() error {
	return c.client.Close()
}
