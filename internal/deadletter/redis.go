package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"finetunedb/internal/config"
)

// RedisQueue implements Store using a Redis hash keyed by item id
type RedisQueue struct {
	client *redis.Client
	dlKey  string
	owned  bool
}

// NewRedisQueue wraps an existing client. The caller keeps ownership of the client.
func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	return &RedisQueue{
		client: client,
		dlKey:  fmt.Sprintf("dlq:%s", name),
	}
}

// DialRedisQueue connects to Redis and verifies the connection
func DialRedisQueue(ctx context.Context, cfg config.RedisConfig, name string) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	q := NewRedisQueue(client, name)
	q.owned = true
	return q, nil
}

// Add stores items in the hash
func (q *RedisQueue) Add(ctx context.Context, items ...Item) error {
	if len(items) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(items)*2)
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal dead letter item: %w", err)
		}
		values = append(values, item.ID, data)
	}

	if err := q.client.HSet(ctx, q.dlKey, values...).Err(); err != nil {
		return fmt.Errorf("failed to add to dead letter queue: %w", err)
	}

	return nil
}

// List retrieves items from the hash, oldest first
func (q *RedisQueue) List(ctx context.Context, maxItems int) ([]Item, error) {
	results, err := q.client.HGetAll(ctx, q.dlKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letter items: %w", err)
	}

	items := make([]Item, 0, len(results))
	for _, data := range results {
		var item Item
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			continue // Skip malformed items
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Timestamp.Before(items[j].Timestamp)
	})

	if maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
	}
	return items, nil
}

// Remove removes an item from the hash
func (q *RedisQueue) Remove(ctx context.Context, id string) error {
	n, err := q.client.HDel(ctx, q.dlKey, id).Result()
	if err != nil {
		return fmt.Errorf("failed to remove from dead letter queue: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Close closes the client if this queue dialed it
func (q *RedisQueue) Close() error {
	if !q.owned {
		return nil
	}
	return q.client.Close()
}
