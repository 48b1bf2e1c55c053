package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"ledger-api/internal/models"
	"ledger-api/internal/repository"
	"ledger-api/pkg/errors"
)

// LedgerEngine owns every balance mutation. Each mutation appends a
// ledger entry and updates the wallet balance in the same transaction,
// under a per-wallet distributed lock, so a wallet's balance always
// equals the signed sum of its entries.
type LedgerEngine interface {
	// GetOrCreateWallet returns the user's wallet, creating it with a
	// zero balance on first access.
	GetOrCreateWallet(ctx context.Context, userID int64) (*models.Wallet, error)

	Deposit(ctx context.Context, req *DepositRequest) (*EntryResult, error)
	Withdraw(ctx context.Context, req *WithdrawRequest) (*EntryResult, error)
	Transfer(ctx context.Context, req *TransferRequest) (*TransferResult, error)

	// ApplyCredit and ApplyDebit mutate a wallet inside a caller-owned
	// transaction and lock. They are the building blocks composite
	// operations (order settlement) use to join wallet movements with
	// their own writes atomically.
	ApplyCredit(ctx context.Context, wallet *models.Wallet, amount decimal.Decimal, kind models.EntryKind, reference string) (*models.LedgerEntry, error)
	ApplyDebit(ctx context.Context, wallet *models.Wallet, amount decimal.Decimal, kind models.EntryKind, reference string) (*models.LedgerEntry, error)
}

type ledgerEngine struct {
	walletRepo  repository.WalletRepository
	entryRepo   repository.EntryRepository
	lockManager repository.LockManager
	txRunner    TxRunner
}

func NewLedgerEngine(
	walletRepo repository.WalletRepository,
	entryRepo repository.EntryRepository,
	lockManager repository.LockManager,
	txRunner TxRunner,
) LedgerEngine {
	return &ledgerEngine{
		walletRepo:  walletRepo,
		entryRepo:   entryRepo,
		lockManager: lockManager,
		txRunner:    txRunner,
	}
}

type DepositRequest struct {
	UserID    int64           `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

type WithdrawRequest struct {
	UserID    int64           `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

type EntryResult struct {
	Entry  *models.LedgerEntry `json:"entry"`
	Wallet *models.Wallet      `json:"wallet"`
}

type TransferRequest struct {
	FromUserID int64           `json:"from_user_id"`
	ToWalletID string          `json:"to_wallet_id"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference"`
}

type TransferResult struct {
	DebitEntry  *models.LedgerEntry `json:"debit_entry"`
	CreditEntry *models.LedgerEntry `json:"credit_entry"`
	FromWallet  *models.Wallet      `json:"from_wallet"`
	ToWallet    *models.Wallet      `json:"to_wallet"`
}

func (e *ledgerEngine) GetOrCreateWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	wallet, err := e.walletRepo.GetByUserID(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if err != errors.ErrWalletNotFound {
		return nil, err
	}

	wallet = models.NewWallet(userID)
	if createErr := e.walletRepo.Create(ctx, wallet); createErr != nil {
		// Lost a creation race; the unique user_id index kept one copy.
		if existing, getErr := e.walletRepo.GetByUserID(ctx, userID); getErr == nil {
			return existing, nil
		}
		return nil, createErr
	}
	return wallet, nil
}

// Deposit credits a confirmed payment. The wallet is created on first
// deposit, so a first-time user's confirmed payment never bounces.
func (e *ledgerEngine) Deposit(ctx context.Context, req *DepositRequest) (*EntryResult, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.ErrInvalidAmount
	}

	wallet, err := e.GetOrCreateWallet(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	lock, err := e.lockManager.LockWallet(ctx, wallet.ID.Hex())
	if err != nil {
		return nil, err
	}
	defer e.lockManager.Release(ctx, lock)

	var result *EntryResult
	err = e.txRunner.WithTransaction(ctx, func(txCtx context.Context) error {
		wallet, err := e.walletRepo.GetByID(txCtx, wallet.ID)
		if err != nil {
			return err
		}

		entry, err := e.ApplyCredit(txCtx, wallet, req.Amount, models.EntryKindDeposit, req.Reference)
		if err != nil {
			return err
		}

		result = &EntryResult{Entry: entry, Wallet: wallet}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (e *ledgerEngine) Withdraw(ctx context.Context, req *WithdrawRequest) (*EntryResult, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.ErrInvalidAmount
	}

	wallet, err := e.walletRepo.GetByUserID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	lock, err := e.lockManager.LockWallet(ctx, wallet.ID.Hex())
	if err != nil {
		return nil, err
	}
	defer e.lockManager.Release(ctx, lock)

	var result *EntryResult
	err = e.txRunner.WithTransaction(ctx, func(txCtx context.Context) error {
		wallet, err := e.walletRepo.GetByID(txCtx, wallet.ID)
		if err != nil {
			return err
		}

		entry, err := e.ApplyDebit(txCtx, wallet, req.Amount, models.EntryKindWithdrawal, req.Reference)
		if err != nil {
			return err
		}

		result = &EntryResult{Entry: entry, Wallet: wallet}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Transfer moves funds between two wallets atomically. Both wallets are
// locked in ascending ID order before the transaction starts, so the
// debit and credit entries either both land or neither does, and the
// combined balance of the pair is unchanged.
func (e *ledgerEngine) Transfer(ctx context.Context, req *TransferRequest) (*TransferResult, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.ErrInvalidAmount
	}

	fromWallet, err := e.walletRepo.GetByUserID(ctx, req.FromUserID)
	if err != nil {
		return nil, err
	}

	toID, err := primitive.ObjectIDFromHex(req.ToWalletID)
	if err != nil {
		return nil, errors.ErrWalletNotFound
	}

	toWallet, err := e.walletRepo.GetByID(ctx, toID)
	if err != nil {
		return nil, err
	}

	if fromWallet.ID == toWallet.ID {
		return nil, errors.ErrSameWallet
	}

	locks, err := e.lockManager.LockWallets(ctx, fromWallet.ID.Hex(), toWallet.ID.Hex())
	if err != nil {
		return nil, err
	}
	defer e.lockManager.Release(ctx, locks...)

	var result *TransferResult
	err = e.txRunner.WithTransaction(ctx, func(txCtx context.Context) error {
		from, err := e.walletRepo.GetByID(txCtx, fromWallet.ID)
		if err != nil {
			return err
		}

		to, err := e.walletRepo.GetByID(txCtx, toWallet.ID)
		if err != nil {
			return err
		}

		// Counterparty references go on the entries before they are
		// persisted.
		debit := models.NewLedgerEntry(from.ID, req.Amount, models.EntryKindTransferOut, req.Reference)
		debit.CounterpartyWalletID = &to.ID
		credit := models.NewLedgerEntry(to.ID, req.Amount, models.EntryKindTransferIn, req.Reference)
		credit.CounterpartyWalletID = &from.ID

		if err := e.applyEntry(txCtx, from, debit); err != nil {
			return err
		}
		if err := e.applyEntry(txCtx, to, credit); err != nil {
			return err
		}

		result = &TransferResult{
			DebitEntry:  debit,
			CreditEntry: credit,
			FromWallet:  from,
			ToWallet:    to,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (e *ledgerEngine) ApplyCredit(ctx context.Context, wallet *models.Wallet, amount decimal.Decimal, kind models.EntryKind, reference string) (*models.LedgerEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.ErrInvalidAmount
	}

	entry := models.NewLedgerEntry(wallet.ID, amount, kind, reference)
	if !entry.IsCredit() {
		return nil, errors.NewInternalError("entry kind is not a credit: " + string(kind))
	}

	if err := e.applyEntry(ctx, wallet, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (e *ledgerEngine) ApplyDebit(ctx context.Context, wallet *models.Wallet, amount decimal.Decimal, kind models.EntryKind, reference string) (*models.LedgerEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.ErrInvalidAmount
	}

	entry := models.NewLedgerEntry(wallet.ID, amount, kind, reference)
	if entry.IsCredit() {
		return nil, errors.NewInternalError("entry kind is not a debit: " + string(kind))
	}

	if err := e.applyEntry(ctx, wallet, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// applyEntry persists an entry and the matching balance change. The
// caller owns the transaction and the wallet lock.
func (e *ledgerEngine) applyEntry(ctx context.Context, wallet *models.Wallet, entry *models.LedgerEntry) error {
	if !entry.IsCredit() && !wallet.HasSufficientBalance(entry.Amount) {
		return errors.ErrInsufficientFunds
	}

	if err := e.entryRepo.Create(ctx, entry); err != nil {
		return err
	}

	if entry.IsCredit() {
		wallet.Balance = wallet.Balance.Add(entry.Amount)
	} else {
		wallet.Balance = wallet.Balance.Sub(entry.Amount)
	}
	wallet.UpdatedAt = time.Now()
	return e.walletRepo.Update(ctx, wallet)
}
