package infrastructure

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"furniture-store/internal/config"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis and verifies the connection with PING.
func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

// cartDeltaScript applies a quantity delta to one hash field, dropping the
// field once it reaches zero, and refreshes the cart's TTL.
var cartDeltaScript = redis.NewScript(`
	local key = KEYS[1]
	local product_id = ARGV[1]
	local delta = tonumber(ARGV[2])
	local ttl = tonumber(ARGV[3])

	local quantity = redis.call('HINCRBY', key, product_id, delta)
	if quantity <= 0 then
		redis.call('HDEL', key, product_id)
		quantity = 0
	end
	if redis.call('HLEN', key) > 0 then
		redis.call('PEXPIRE', key, ttl)
	end
	return quantity
`)

// RedisCartStore keeps each cart as a hash of productID -> quantity under
// cart:<userID>:items. Every access slides the expiry forward.
type RedisCartStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCartStore(client *redis.Client, ttl time.Duration) *RedisCartStore {
	return &RedisCartStore{client: client, ttl: ttl}
}

func cartItemsKey(userID string) string {
	return fmt.Sprintf("cart:%s:items", userID)
}

func (r *RedisCartStore) Items(ctx context.Context, userID string) (map[string]int, error) {
	key := cartItemsKey(userID)

	raw, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get cart items: %w", err)
	}

	items := make(map[string]int, len(raw))
	for productID, value := range raw {
		quantity, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid quantity for product %s: %w", productID, err)
		}
		if quantity > 0 {
			items[productID] = quantity
		}
	}
	if len(items) > 0 {
		if err := r.client.PExpire(ctx, key, r.ttl).Err(); err != nil {
			return nil, fmt.Errorf("failed to refresh cart ttl: %w", err)
		}
	}
	return items, nil
}

func (r *RedisCartStore) Add(ctx context.Context, userID, productID string, delta int) (int, error) {
	quantity, err := cartDeltaScript.Run(ctx, r.client,
		[]string{cartItemsKey(userID)},
		productID, delta, r.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to update cart item: %w", err)
	}
	return quantity, nil
}

func (r *RedisCartStore) Set(ctx context.Context, userID, productID string, quantity int) error {
	key := cartItemsKey(userID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, productID, quantity)
		pipe.PExpire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set cart item: %w", err)
	}
	return nil
}

func (r *RedisCartStore) Remove(ctx context.Context, userID, productID string) error {
	if err := r.client.HDel(ctx, cartItemsKey(userID), productID).Err(); err != nil {
		return fmt.Errorf("failed to delete item from cart: %w", err)
	}
	return nil
}

func (r *RedisCartStore) Clear(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, cartItemsKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}
