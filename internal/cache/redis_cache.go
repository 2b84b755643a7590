package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"odelivery/terminal/internal/domain"
)

type RedisDocumentCache struct {
	client *redis.Client
}

func NewRedisDocumentCache(addr string, password string, db int) *RedisDocumentCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisDocumentCache{client: client}
}

func (c *RedisDocumentCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisDocumentCache) Close() error {
	return c.client.Close()
}

func (c *RedisDocumentCache) Get(ctx context.Context, orderID string) (*domain.ReceiptDocument, bool, error) {
	val, err := c.client.Get(ctx, key(orderID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var doc domain.ReceiptDocument
	if err := json.Unmarshal([]byte(val), &doc); err != nil {
		return nil, false, err
	}
	return &doc, true, nil
}

func (c *RedisDocumentCache) Set(ctx context.Context, orderID string, doc *domain.ReceiptDocument, ttl time.Duration) error {
	if doc == nil {
		return nil
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(orderID), payload, ttl).Err()
}

func key(orderID string) string {
	return "receipt:doc:" + orderID
}
