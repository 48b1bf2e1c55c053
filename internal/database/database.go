package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"ledger-api/internal/config"
	"ledger-api/internal/repository"
)

type Database struct {
	MongoDB      *mongo.Database
	RedisDB      *redis.Client
	Repositories *Repositories
}

type Repositories struct {
	Wallet      repository.WalletRepository
	Entry       repository.EntryRepository
	Position    repository.PositionRepository
	Order       repository.OrderRepository
	Withdrawal  repository.WithdrawalRepository
	Lock        repository.LockRepository
	LockManager repository.LockManager
}

func Initialize(ctx context.Context, cfg *config.Config) (*Database, error) {
	mongoDB, err := initializeMongoDB(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MongoDB: %w", err)
	}

	redisDB, err := initializeRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	lockRepo := repository.NewLockRepository(redisDB)

	repos := &Repositories{
		Wallet:      repository.NewWalletRepository(mongoDB),
		Entry:       repository.NewEntryRepository(mongoDB),
		Position:    repository.NewPositionRepository(mongoDB),
		Order:       repository.NewOrderRepository(mongoDB),
		Withdrawal:  repository.NewWithdrawalRepository(mongoDB),
		Lock:        lockRepo,
		LockManager: repository.NewLockManager(lockRepo, cfg.Redis.LockTTL),
	}

	if err := createIndexes(ctx, mongoDB); err != nil {
		return nil, fmt.Errorf("failed to create database indexes: %w", err)
	}

	return &Database{
		MongoDB:      mongoDB,
		RedisDB:      redisDB,
		Repositories: repos,
	}, nil
}

func initializeMongoDB(ctx context.Context, cfg config.DatabaseConfig) (*mongo.Database, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(uint64(cfg.MaxPoolSize)).
		SetMinPoolSize(uint64(cfg.MinPoolSize)).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.SelectionTimeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(cfg.Database), nil
}

func initializeRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

func createIndexes(ctx context.Context, db *mongo.Database) error {
	if err := repository.CreateWalletIndexes(ctx, db); err != nil {
		return err
	}
	if err := repository.CreateEntryIndexes(ctx, db); err != nil {
		return err
	}
	if err := repository.CreatePositionIndexes(ctx, db); err != nil {
		return err
	}
	if err := repository.CreateOrderIndexes(ctx, db); err != nil {
		return err
	}
	return repository.CreateWithdrawalIndexes(ctx, db)
}

func (db *Database) Close(ctx context.Context) error {
	var errs []error

	if db.MongoDB != nil {
		if err := db.MongoDB.Client().Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close MongoDB: %w", err))
		}
	}

	if db.RedisDB != nil {
		if err := db.RedisDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing database connections: %v", errs)
	}

	return nil
}

func (db *Database) HealthCheck(ctx context.Context) error {
	if err := db.MongoDB.Client().Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("MongoDB health check failed: %w", err)
	}

	if _, err := db.RedisDB.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("Redis health check failed: %w", err)
	}

	return nil
}
