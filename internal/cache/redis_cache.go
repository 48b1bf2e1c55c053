package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ledger-api/internal/models"
)

// WalletCache is a read-through cache for wallet lookups. Write paths
// invalidate rather than update; the next read repopulates from Mongo.
// Cache failures degrade to a repository read, never to a request error.
type WalletCache interface {
	GetWallet(ctx context.Context, userID int64) (*models.Wallet, bool)
	SetWallet(ctx context.Context, wallet *models.Wallet)
	InvalidateWallet(ctx context.Context, userID int64)
	Ping(ctx context.Context) error
	Close() error
}

type redisWalletCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewWalletCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger) WalletCache {
	return &redisWalletCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func walletKey(userID int64) string {
	return fmt.Sprintf("wallet:user:%d", userID)
}

func (c *redisWalletCache) GetWallet(ctx context.Context, userID int64) (*models.Wallet, bool) {
	data, err := c.client.Get(ctx, walletKey(userID)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Warn("Wallet cache read failed")
		}
		return nil, false
	}

	var wallet models.Wallet
	if err := json.Unmarshal([]byte(data), &wallet); err != nil {
		c.logger.WithError(err).Warn("Wallet cache entry corrupt, dropping")
		c.client.Del(ctx, walletKey(userID))
		return nil, false
	}

	return &wallet, true
}

func (c *redisWalletCache) SetWallet(ctx context.Context, wallet *models.Wallet) {
	data, err := json.Marshal(wallet)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to marshal wallet for cache")
		return
	}

	if err := c.client.Set(ctx, walletKey(wallet.UserID), data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("Wallet cache write failed")
	}
}

func (c *redisWalletCache) InvalidateWallet(ctx context.Context, userID int64) {
	if err := c.client.Del(ctx, walletKey(userID)).Err(); err != nil {
		c.logger.WithError(err).Warn("Wallet cache invalidation failed")
	}
}

func (c *redisWalletCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *redisWalletCache) Close() error {
	return c.client.Close()
}

// NewRedisClient builds the shared Redis client used by the cache and
// the distributed lock repository.
func NewRedisClient(host string, port int, password string, db, poolSize int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
