// ABOUTME: Redis adapter for the hash and ranked index contracts
// ABOUTME: Hashes map to HSET/HGETALL/HDEL and ranked indexes to sorted sets

package redisstore

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nainya/entitystore/pkg/errs"
	"github.com/nainya/entitystore/pkg/storage"
)

// Options configures the Redis connection pool
type Options struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Store hands out dedicated Redis connections, one per logical operation
type Store struct {
	rdb *redis.Client
}

// New creates a store with its own client pool
func New(opts Options) *Store {
	return NewFromClient(redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}))
}

// NewFromClient wraps an existing client. Closing the store closes it.
func NewFromClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Acquire takes a connection out of the pool and verifies it answers
func (s *Store) Acquire(ctx context.Context) (storage.Conn, error) {
	c := s.rdb.Conn()
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, classify("acquire", err)
	}
	return &conn{c: c}, nil
}

// Ping checks the server is reachable
func (s *Store) Ping(ctx context.Context) error {
	return classify("ping", s.rdb.Ping(ctx).Err())
}

// Close releases the pool
func (s *Store) Close() error {
	return s.rdb.Close()
}

type conn struct {
	c *redis.Conn
}

func (c *conn) Release() {
	c.c.Close()
}

func (c *conn) HashSet(ctx context.Context, key string, columns map[string][]byte) error {
	if len(columns) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(columns))
	for col, val := range columns {
		values[col] = val
	}
	return classify("hset", c.c.HSet(ctx, key, values).Err())
}

func (c *conn) HashGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	res, err := c.c.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, classify("hgetall", err)
	}
	out := make(map[string][]byte, len(res))
	for col, val := range res {
		out[col] = []byte(val)
	}
	return out, nil
}

func (c *conn) HashDelete(ctx context.Context, key string, columns ...string) error {
	if len(columns) == 0 {
		return nil
	}
	return classify("hdel", c.c.HDel(ctx, key, columns...).Err())
}

func (c *conn) RankedAdd(ctx context.Context, key string, score float64, member string) error {
	return classify("zadd", c.c.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err())
}

func (c *conn) RankedRemove(ctx context.Context, key string, member string) error {
	return classify("zrem", c.c.ZRem(ctx, key, member).Err())
}

func (c *conn) RangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	res, err := c.c.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}).Result()
	if err != nil {
		return nil, classify("zrangebyscore", err)
	}
	return res, nil
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// classify turns transport failures into *errs.ConnectionError. Server
// replies such as WRONGTYPE pass through unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	switch {
	case errors.Is(err, redis.ErrClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &netErr):
		return &errs.ConnectionError{Op: op, Err: err}
	}
	return err
}
