package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"ledger-api/internal/models"
	"ledger-api/internal/repository"
	"ledger-api/pkg/errors"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type memWalletRepo struct {
	mu      sync.Mutex
	wallets map[primitive.ObjectID]*models.Wallet
}

func newMemWalletRepo() *memWalletRepo {
	return &memWalletRepo{wallets: make(map[primitive.ObjectID]*models.Wallet)}
}

func (r *memWalletRepo) Create(ctx context.Context, wallet *models.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if wallet.ID.IsZero() {
		wallet.ID = primitive.NewObjectID()
	}
	copied := *wallet
	r.wallets[wallet.ID] = &copied
	return nil
}

func (r *memWalletRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wallet, ok := r.wallets[id]
	if !ok {
		return nil, errors.ErrWalletNotFound
	}
	copied := *wallet
	return &copied, nil
}

func (r *memWalletRepo) GetByUserID(ctx context.Context, userID int64) (*models.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, wallet := range r.wallets {
		if wallet.UserID == userID {
			copied := *wallet
			return &copied, nil
		}
	}
	return nil, errors.ErrWalletNotFound
}

func (r *memWalletRepo) GetByWalletNumber(ctx context.Context, walletNumber string) (*models.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, wallet := range r.wallets {
		if wallet.WalletNumber == walletNumber {
			copied := *wallet
			return &copied, nil
		}
	}
	return nil, errors.ErrWalletNotFound
}

func (r *memWalletRepo) Update(ctx context.Context, wallet *models.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.wallets[wallet.ID]; !ok {
		return errors.ErrWalletNotFound
	}
	copied := *wallet
	r.wallets[wallet.ID] = &copied
	return nil
}

func (r *memWalletRepo) List(ctx context.Context, limit, offset int) ([]*models.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wallets := make([]*models.Wallet, 0, len(r.wallets))
	for _, wallet := range r.wallets {
		copied := *wallet
		wallets = append(wallets, &copied)
	}
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].UserID < wallets[j].UserID })
	if offset >= len(wallets) {
		return nil, nil
	}
	end := offset + limit
	if end > len(wallets) {
		end = len(wallets)
	}
	return wallets[offset:end], nil
}

func (r *memWalletRepo) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.wallets)), nil
}

type memEntryRepo struct {
	mu      sync.Mutex
	entries []*models.LedgerEntry
}

func newMemEntryRepo() *memEntryRepo {
	return &memEntryRepo{}
}

func (r *memEntryRepo) Create(ctx context.Context, entry *models.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	copied := *entry
	r.entries = append(r.entries, &copied)
	return nil
}

func (r *memEntryRepo) GetByEntryID(ctx context.Context, entryID string) (*models.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		if entry.EntryID == entryID {
			copied := *entry
			return &copied, nil
		}
	}
	return nil, errors.NewNotFoundError("Ledger entry not found")
}

func (r *memEntryRepo) GetByWalletID(ctx context.Context, walletID primitive.ObjectID, limit, offset int) ([]*models.LedgerEntry, error) {
	all, _ := r.SumByWalletID(ctx, walletID)
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *memEntryRepo) CountByWalletID(ctx context.Context, walletID primitive.ObjectID) (int64, error) {
	all, _ := r.SumByWalletID(ctx, walletID)
	return int64(len(all)), nil
}

func (r *memEntryRepo) SumByWalletID(ctx context.Context, walletID primitive.ObjectID) ([]*models.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.LedgerEntry
	for _, entry := range r.entries {
		if entry.WalletID == walletID {
			copied := *entry
			result = append(result, &copied)
		}
	}
	return result, nil
}

type memWithdrawalRepo struct {
	mu          sync.Mutex
	withdrawals map[string]*models.Withdrawal
}

func newMemWithdrawalRepo() *memWithdrawalRepo {
	return &memWithdrawalRepo{withdrawals: make(map[string]*models.Withdrawal)}
}

func (r *memWithdrawalRepo) Create(ctx context.Context, withdrawal *models.Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if withdrawal.ID.IsZero() {
		withdrawal.ID = primitive.NewObjectID()
	}
	copied := *withdrawal
	r.withdrawals[withdrawal.WithdrawalID] = &copied
	return nil
}

func (r *memWithdrawalRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, withdrawal := range r.withdrawals {
		if withdrawal.ID == id {
			copied := *withdrawal
			return &copied, nil
		}
	}
	return nil, errors.ErrWithdrawalNotFound
}

func (r *memWithdrawalRepo) GetByWithdrawalID(ctx context.Context, withdrawalID string) (*models.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	withdrawal, ok := r.withdrawals[withdrawalID]
	if !ok {
		return nil, errors.ErrWithdrawalNotFound
	}
	copied := *withdrawal
	return &copied, nil
}

func (r *memWithdrawalRepo) Update(ctx context.Context, withdrawal *models.Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.withdrawals[withdrawal.WithdrawalID]; !ok {
		return errors.ErrWithdrawalNotFound
	}
	copied := *withdrawal
	r.withdrawals[withdrawal.WithdrawalID] = &copied
	return nil
}

func (r *memWithdrawalRepo) GetByUserID(ctx context.Context, userID int64, limit, offset int) ([]*models.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.Withdrawal
	for _, withdrawal := range r.withdrawals {
		if withdrawal.UserID == userID {
			copied := *withdrawal
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RequestedAt.After(result[j].RequestedAt) })
	return page(result, limit, offset), nil
}

func (r *memWithdrawalRepo) GetByStatus(ctx context.Context, status models.WithdrawalStatus, limit, offset int) ([]*models.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.Withdrawal
	for _, withdrawal := range r.withdrawals {
		if withdrawal.Status == status {
			copied := *withdrawal
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RequestedAt.After(result[j].RequestedAt) })
	return page(result, limit, offset), nil
}

func page(withdrawals []*models.Withdrawal, limit, offset int) []*models.Withdrawal {
	if offset >= len(withdrawals) {
		return nil
	}
	end := offset + limit
	if end > len(withdrawals) {
		end = len(withdrawals)
	}
	return withdrawals[offset:end]
}

type memOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]*models.Order)}
}

func (r *memOrderRepo) Create(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	copied := *order
	r.orders[order.OrderID] = &copied
	return nil
}

func (r *memOrderRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, order := range r.orders {
		if order.ID == id {
			copied := *order
			return &copied, nil
		}
	}
	return nil, errors.ErrOrderNotFound
}

func (r *memOrderRepo) GetByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return nil, errors.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (r *memOrderRepo) Update(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.OrderID]; !ok {
		return errors.ErrOrderNotFound
	}
	copied := *order
	r.orders[order.OrderID] = &copied
	return nil
}

func (r *memOrderRepo) GetByUserID(ctx context.Context, userID int64, limit, offset int) ([]*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.Order
	for _, order := range r.orders {
		if order.UserID == userID {
			copied := *order
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if offset >= len(result) {
		return nil, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

func (r *memOrderRepo) CountByUserID(ctx context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, order := range r.orders {
		if order.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *memOrderRepo) GetByStatus(ctx context.Context, status models.OrderStatus, limit int) ([]*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.Order
	for _, order := range r.orders {
		if order.Status == status && len(result) < limit {
			copied := *order
			result = append(result, &copied)
		}
	}
	return result, nil
}

type memPositionRepo struct {
	mu        sync.Mutex
	positions map[string]*models.AssetPosition
}

func newMemPositionRepo() *memPositionRepo {
	return &memPositionRepo{positions: make(map[string]*models.AssetPosition)}
}

func positionKey(userID int64, coinID string) string {
	return fmt.Sprintf("%d:%s", userID, coinID)
}

func (r *memPositionRepo) Get(ctx context.Context, userID int64, coinID string) (*models.AssetPosition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	position, ok := r.positions[positionKey(userID, coinID)]
	if !ok {
		return nil, errors.ErrPositionNotFound
	}
	copied := *position
	return &copied, nil
}

func (r *memPositionRepo) Upsert(ctx context.Context, position *models.AssetPosition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *position
	r.positions[positionKey(position.UserID, position.CoinID)] = &copied
	return nil
}

func (r *memPositionRepo) Delete(ctx context.Context, userID int64, coinID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := positionKey(userID, coinID)
	if _, ok := r.positions[key]; !ok {
		return errors.ErrPositionNotFound
	}
	delete(r.positions, key)
	return nil
}

func (r *memPositionRepo) GetByUserID(ctx context.Context, userID int64) ([]*models.AssetPosition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.AssetPosition
	for _, position := range r.positions {
		if position.UserID == userID {
			copied := *position
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CoinID < result[j].CoinID })
	return result, nil
}

// memLockManager backs the service tests with in-process mutexes.
type memLockManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMemLockManager() *memLockManager {
	return &memLockManager{locks: make(map[string]*sync.Mutex)}
}

func (m *memLockManager) acquire(key string) *repository.DistributedLock {
	m.mu.Lock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	m.mu.Unlock()
	lock.Lock()
	return &repository.DistributedLock{Key: key}
}

func (m *memLockManager) LockWallet(ctx context.Context, walletID string) (*repository.DistributedLock, error) {
	return m.acquire("wallet:" + walletID), nil
}

func (m *memLockManager) LockWallets(ctx context.Context, walletIDs ...string) ([]*repository.DistributedLock, error) {
	sorted := append([]string(nil), walletIDs...)
	sort.Strings(sorted)
	locks := make([]*repository.DistributedLock, 0, len(sorted))
	for _, id := range sorted {
		locks = append(locks, m.acquire("wallet:"+id))
	}
	return locks, nil
}

func (m *memLockManager) LockUser(ctx context.Context, userID int64) (*repository.DistributedLock, error) {
	return m.acquire(fmt.Sprintf("user:%d", userID)), nil
}

func (m *memLockManager) Release(ctx context.Context, locks ...*repository.DistributedLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lock := range locks {
		if lock == nil {
			continue
		}
		if held, ok := m.locks[lock.Key]; ok {
			held.Unlock()
		}
	}
}

type passTxRunner struct{}

func (passTxRunner) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// txStore is a fake store whose state can be captured and restored.
type txStore interface {
	snapshot() func()
}

// rollbackTxRunner captures the stores before the callback and restores
// them when it fails, mirroring a transaction abort.
type rollbackTxRunner struct {
	stores []txStore
}

func (r *rollbackTxRunner) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	restores := make([]func(), 0, len(r.stores))
	for _, store := range r.stores {
		restores = append(restores, store.snapshot())
	}
	if err := fn(ctx); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

func (r *memWalletRepo) snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := make(map[primitive.ObjectID]*models.Wallet, len(r.wallets))
	for id, wallet := range r.wallets {
		copied := *wallet
		saved[id] = &copied
	}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.wallets = saved
	}
}

func (r *memEntryRepo) snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := append([]*models.LedgerEntry(nil), r.entries...)
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.entries = saved
	}
}

func (r *memWithdrawalRepo) snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := make(map[string]*models.Withdrawal, len(r.withdrawals))
	for id, withdrawal := range r.withdrawals {
		copied := *withdrawal
		saved[id] = &copied
	}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.withdrawals = saved
	}
}

// flakyWithdrawalRepo fails a set number of updates before recovering.
type flakyWithdrawalRepo struct {
	*memWithdrawalRepo
	failUpdates int
}

func (r *flakyWithdrawalRepo) Update(ctx context.Context, withdrawal *models.Withdrawal) error {
	if r.failUpdates > 0 {
		r.failUpdates--
		return errors.NewInternalError("withdrawal write failed")
	}
	return r.memWithdrawalRepo.Update(ctx, withdrawal)
}

// memCache is a map-backed WalletCache that records invalidations.
type memCache struct {
	mu            sync.Mutex
	wallets       map[int64]*models.Wallet
	invalidations []int64
}

func newMemCache() *memCache {
	return &memCache{wallets: make(map[int64]*models.Wallet)}
}

func (c *memCache) GetWallet(ctx context.Context, userID int64) (*models.Wallet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wallet, ok := c.wallets[userID]
	if !ok {
		return nil, false
	}
	copied := *wallet
	return &copied, true
}

func (c *memCache) SetWallet(ctx context.Context, wallet *models.Wallet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *wallet
	c.wallets[wallet.UserID] = &copied
}

func (c *memCache) InvalidateWallet(ctx context.Context, userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.wallets, userID)
	c.invalidations = append(c.invalidations, userID)
}

func (c *memCache) Ping(ctx context.Context) error { return nil }

func (c *memCache) Close() error { return nil }
