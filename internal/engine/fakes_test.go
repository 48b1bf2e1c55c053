package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"ledger-api/internal/models"
	"ledger-api/internal/repository"
	"ledger-api/pkg/errors"
)

// In-memory fakes backing the engine tests. They hold copies of every
// stored document so reloads inside a transaction observe committed
// state, like the real MongoDB repositories do.

type fakeWalletRepo struct {
	mu      sync.Mutex
	wallets map[primitive.ObjectID]*models.Wallet
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{wallets: make(map[primitive.ObjectID]*models.Wallet)}
}

func (r *fakeWalletRepo) Create(ctx context.Context, wallet *models.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if wallet.ID.IsZero() {
		wallet.ID = primitive.NewObjectID()
	}
	copied := *wallet
	r.wallets[wallet.ID] = &copied
	return nil
}

func (r *fakeWalletRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wallet, ok := r.wallets[id]
	if !ok {
		return nil, errors.ErrWalletNotFound
	}
	copied := *wallet
	return &copied, nil
}

func (r *fakeWalletRepo) GetByUserID(ctx context.Context, userID int64) (*models.Wallet, error) {
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

func (r *fakeWalletRepo) GetByWalletNumber(ctx context.Context, walletNumber string) (*models.Wallet, error) {
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

func (r *fakeWalletRepo) Update(ctx context.Context, wallet *models.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.wallets[wallet.ID]; !ok {
		return errors.ErrWalletNotFound
	}
	copied := *wallet
	r.wallets[wallet.ID] = &copied
	return nil
}

func (r *fakeWalletRepo) List(ctx context.Context, limit, offset int) ([]*models.Wallet, error) {
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

func (r *fakeWalletRepo) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.wallets)), nil
}

type fakeEntryRepo struct {
	mu      sync.Mutex
	entries []*models.LedgerEntry
}

func newFakeEntryRepo() *fakeEntryRepo {
	return &fakeEntryRepo{}
}

func (r *fakeEntryRepo) Create(ctx context.Context, entry *models.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	copied := *entry
	r.entries = append(r.entries, &copied)
	return nil
}

func (r *fakeEntryRepo) GetByEntryID(ctx context.Context, entryID string) (*models.LedgerEntry, error) {
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

func (r *fakeEntryRepo) GetByWalletID(ctx context.Context, walletID primitive.ObjectID, limit, offset int) ([]*models.LedgerEntry, error) {
	all, _ := r.SumByWalletID(ctx, walletID)
	// newest first
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

func (r *fakeEntryRepo) CountByWalletID(ctx context.Context, walletID primitive.ObjectID) (int64, error) {
	all, _ := r.SumByWalletID(ctx, walletID)
	return int64(len(all)), nil
}

func (r *fakeEntryRepo) SumByWalletID(ctx context.Context, walletID primitive.ObjectID) ([]*models.LedgerEntry, error) {
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

type fakePositionRepo struct {
	mu        sync.Mutex
	positions map[string]*models.AssetPosition
}

func newFakePositionRepo() *fakePositionRepo {
	return &fakePositionRepo{positions: make(map[string]*models.AssetPosition)}
}

func positionKey(userID int64, coinID string) string {
	return fmt.Sprintf("%d:%s", userID, coinID)
}

func (r *fakePositionRepo) Get(ctx context.Context, userID int64, coinID string) (*models.AssetPosition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	position, ok := r.positions[positionKey(userID, coinID)]
	if !ok {
		return nil, errors.ErrPositionNotFound
	}
	copied := *position
	return &copied, nil
}

func (r *fakePositionRepo) Upsert(ctx context.Context, position *models.AssetPosition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *position
	r.positions[positionKey(position.UserID, position.CoinID)] = &copied
	return nil
}

func (r *fakePositionRepo) Delete(ctx context.Context, userID int64, coinID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := positionKey(userID, coinID)
	if _, ok := r.positions[key]; !ok {
		return errors.ErrPositionNotFound
	}
	delete(r.positions, key)
	return nil
}

func (r *fakePositionRepo) GetByUserID(ctx context.Context, userID int64) ([]*models.AssetPosition, error) {
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

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*models.Order)}
}

func (r *fakeOrderRepo) Create(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	copied := *order
	r.orders[order.OrderID] = &copied
	return nil
}

func (r *fakeOrderRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
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

func (r *fakeOrderRepo) GetByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return nil, errors.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (r *fakeOrderRepo) Update(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.OrderID]; !ok {
		return errors.ErrOrderNotFound
	}
	copied := *order
	r.orders[order.OrderID] = &copied
	return nil
}

func (r *fakeOrderRepo) GetByUserID(ctx context.Context, userID int64, limit, offset int) ([]*models.Order, error) {
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

func (r *fakeOrderRepo) CountByUserID(ctx context.Context, userID int64) (int64, error) {
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

func (r *fakeOrderRepo) GetByStatus(ctx context.Context, status models.OrderStatus, limit int) ([]*models.Order, error) {
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

// fakeLockManager serializes contenders with real mutexes so the
// concurrency tests exercise the same mutual exclusion the Redis locks
// provide in production.
type fakeLockManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newFakeLockManager() *fakeLockManager {
	return &fakeLockManager{locks: make(map[string]*sync.Mutex)}
}

func (m *fakeLockManager) acquire(key string) *repository.DistributedLock {
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

func (m *fakeLockManager) LockWallet(ctx context.Context, walletID string) (*repository.DistributedLock, error) {
	return m.acquire("wallet:" + walletID), nil
}

func (m *fakeLockManager) LockWallets(ctx context.Context, walletIDs ...string) ([]*repository.DistributedLock, error) {
	sorted := append([]string(nil), walletIDs...)
	sort.Strings(sorted)
	locks := make([]*repository.DistributedLock, 0, len(sorted))
	for _, id := range sorted {
		locks = append(locks, m.acquire("wallet:"+id))
	}
	return locks, nil
}

func (m *fakeLockManager) LockUser(ctx context.Context, userID int64) (*repository.DistributedLock, error) {
	return m.acquire(fmt.Sprintf("user:%d", userID)), nil
}

func (m *fakeLockManager) Release(ctx context.Context, locks ...*repository.DistributedLock) {
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

// passTxRunner executes the callback directly, without transactional
// semantics. The fakes commit each write immediately, which is enough
// for tests that assert on final state.
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

func (r *fakeWalletRepo) snapshot() func() {
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

func (r *fakeEntryRepo) snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := append([]*models.LedgerEntry(nil), r.entries...)
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.entries = saved
	}
}

func (r *fakePositionRepo) snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := make(map[string]*models.AssetPosition, len(r.positions))
	for key, position := range r.positions {
		copied := *position
		saved[key] = &copied
	}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.positions = saved
	}
}

func (r *fakeOrderRepo) snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := make(map[string]*models.Order, len(r.orders))
	for id, order := range r.orders {
		copied := *order
		saved[id] = &copied
	}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.orders = saved
	}
}

// failingPositionRepo rejects a set number of writes before recovering.
type failingPositionRepo struct {
	*fakePositionRepo
	failUpserts int
}

func (r *failingPositionRepo) Upsert(ctx context.Context, position *models.AssetPosition) error {
	if r.failUpserts > 0 {
		r.failUpserts--
		return errors.NewInternalError("position write failed")
	}
	return r.fakePositionRepo.Upsert(ctx, position)
}
