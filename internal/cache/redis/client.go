package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/alpa-strategie/aia-backend/pkg/logger"
	"github.com/alpa-strategie/aia-backend/pkg/utils"
)

const embeddingPrefix = "aia:embedding:"

// Client is a query embedding cache shared by every API replica. Redis owns
// expiry, so entries vanish exactly ttl after their last write.
type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(ctx context.Context, host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	_, err := client.Ping(ctx).Result()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized",
		zap.String("addr", fmt.Sprintf("%s:%d", host, port)),
		zap.Duration("ttl", ttl),
	)

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// embeddingKey hashes the query so arbitrary user text never ends up in a key.
func embeddingKey(query string) string {
	return embeddingPrefix + utils.HashString(query)
}

func (c *Client) SetEmbedding(ctx context.Context, query string, embedding []float32) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	err = c.client.Set(ctx, embeddingKey(query), data, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set embedding cache: %w", err)
	}

	logger.Debug("Embedding cached", zap.Duration("ttl", c.ttl))
	return nil
}

func (c *Client) GetEmbedding(ctx context.Context, query string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, embeddingKey(query)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding cache: %w", err)
	}

	var embedding []float32
	err = json.Unmarshal(data, &embedding)
	if err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}

	return embedding, true, nil
}

// Get treats a Redis failure as a miss so search degrades to re-embedding.
func (c *Client) Get(ctx context.Context, key string) ([]float32, bool) {
	vec, ok, err := c.GetEmbedding(ctx, key)
	if err != nil {
		logger.Warn("Embedding cache read failed", zap.Error(err))
		return nil, false
	}
	return vec, ok
}

func (c *Client) Set(ctx context.Context, key string, vec []float32) {
	if err := c.SetEmbedding(ctx, key, vec); err != nil {
		logger.Warn("Embedding cache write failed", zap.Error(err))
	}
}

// InvalidateEmbeddings removes every cached query embedding, e.g. after the
// embedding model changes. Keys outside the embedding prefix are left alone.
func (c *Client) InvalidateEmbeddings(ctx context.Context) error {
	removed := 0
	iter := c.client.Scan(ctx, 0, embeddingPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		err := c.client.Del(ctx, iter.Val()).Err()
		if err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
			continue
		}
		removed++
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Embedding cache invalidated", zap.Int("removed", removed))
	return nil
}
