package redisstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const DefaultDeliveryTTL = 72 * time.Hour

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return rdb, nil
}

// DeliveryLog records applied webhook deliveries so provider retries can be
// acknowledged without a second directory write.
type DeliveryLog struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewDeliveryLog stores keys under prefix for ttl.
func NewDeliveryLog(client redis.Cmdable, prefix string, ttl time.Duration) *DeliveryLog {
	if ttl <= 0 {
		ttl = DefaultDeliveryTTL
	}
	return &DeliveryLog{client: client, prefix: prefix, ttl: ttl}
}

func (l *DeliveryLog) key(k string) string {
	parts := []string{"webhook", "delivery", k}
	if l.prefix != "" {
		parts = append([]string{l.prefix}, parts...)
	}
	return strings.Join(parts, ":")
}

// Seen reports whether key was recorded and has not expired.
func (l *DeliveryLog) Seen(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Record marks key as applied.
func (l *DeliveryLog) Record(ctx context.Context, key string) error {
	return l.client.Set(ctx, l.key(key), time.Now().UTC().Unix(), l.ttl).Err()
}
