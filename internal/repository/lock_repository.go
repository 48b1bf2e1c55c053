package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type LockRepository interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (*DistributedLock, error)
	ReleaseLock(ctx context.Context, lock *DistributedLock) error
	ExtendLock(ctx context.Context, lock *DistributedLock, ttl time.Duration) error
	IsLocked(ctx context.Context, key string) (bool, error)
}

type DistributedLock struct {
	Key        string
	Value      string
	TTL        time.Duration
	AcquiredAt time.Time
}

type lockRepository struct {
	client *redis.Client
}

func NewLockRepository(client *redis.Client) LockRepository {
	return &lockRepository{
		client: client,
	}
}

const (
	lockPrefix        = "lock:"
	lockRetryInterval = 50 * time.Millisecond
	lockAcquireWait   = 5 * time.Second

	releaseScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
)

// AcquireLock blocks until the lock is obtained or the wait window runs
// out. Contending writers on the same wallet queue up here instead of
// failing fast.
func (r *lockRepository) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*DistributedLock, error) {
	lockKey := lockPrefix + key
	lockValue := uuid.New().String()

	deadline := time.Now().Add(lockAcquireWait)
	for {
		ok, err := r.client.SetNX(ctx, lockKey, lockValue, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}

		if ok {
			return &DistributedLock{
				Key:        lockKey,
				Value:      lockValue,
				TTL:        ttl,
				AcquiredAt: time.Now(),
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for lock: %s", key)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

// ReleaseLock deletes the lock only if this holder still owns it.
func (r *lockRepository) ReleaseLock(ctx context.Context, lock *DistributedLock) error {
	result, err := r.client.Eval(ctx, releaseScript, []string{lock.Key}, lock.Value).Result()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	if result.(int64) == 0 {
		return fmt.Errorf("lock not found or already released: %s", lock.Key)
	}

	return nil
}

func (r *lockRepository) ExtendLock(ctx context.Context, lock *DistributedLock, ttl time.Duration) error {
	extendScript := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("EXPIRE", KEYS[1], ARGV[2])
		else
			return 0
		end
	`

	result, err := r.client.Eval(ctx, extendScript, []string{lock.Key}, lock.Value, int(ttl.Seconds())).Result()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}

	if result.(int64) == 0 {
		return fmt.Errorf("lock not found or not owned: %s", lock.Key)
	}

	lock.TTL = ttl
	return nil
}

func (r *lockRepository) IsLocked(ctx context.Context, key string) (bool, error) {
	lockKey := lockPrefix + key
	exists, err := r.client.Exists(ctx, lockKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check lock existence: %w", err)
	}

	return exists > 0, nil
}

// LockManager provides wallet and user level locking for ledger
// mutations. Every balance or position change happens under one of
// these locks.
type LockManager interface {
	LockWallet(ctx context.Context, walletID string) (*DistributedLock, error)
	LockWallets(ctx context.Context, walletIDs ...string) ([]*DistributedLock, error)
	LockUser(ctx context.Context, userID int64) (*DistributedLock, error)
	Release(ctx context.Context, locks ...*DistributedLock)
}

type lockManager struct {
	lockRepo LockRepository
	ttl      time.Duration
}

func NewLockManager(lockRepo LockRepository, ttl time.Duration) LockManager {
	return &lockManager{
		lockRepo: lockRepo,
		ttl:      ttl,
	}
}

func (m *lockManager) LockWallet(ctx context.Context, walletID string) (*DistributedLock, error) {
	return m.lockRepo.AcquireLock(ctx, "wallet:"+walletID, m.ttl)
}

// LockWallets acquires locks in ascending wallet ID order so that two
// transfers touching the same pair of wallets cannot deadlock.
func (m *lockManager) LockWallets(ctx context.Context, walletIDs ...string) ([]*DistributedLock, error) {
	sorted := make([]string, len(walletIDs))
	copy(sorted, walletIDs)
	sort.Strings(sorted)

	locks := make([]*DistributedLock, 0, len(sorted))
	for _, id := range sorted {
		lock, err := m.LockWallet(ctx, id)
		if err != nil {
			m.Release(ctx, locks...)
			return nil, err
		}
		locks = append(locks, lock)
	}

	return locks, nil
}

func (m *lockManager) LockUser(ctx context.Context, userID int64) (*DistributedLock, error) {
	return m.lockRepo.AcquireLock(ctx, fmt.Sprintf("user:%d", userID), m.ttl)
}

// Release releases the given locks, ignoring individual failures. An
// unreleased lock expires on its own after the TTL.
func (m *lockManager) Release(ctx context.Context, locks ...*DistributedLock) {
	for _, lock := range locks {
		if lock == nil {
			continue
		}
		_ = m.lockRepo.ReleaseLock(ctx, lock)
	}
}
