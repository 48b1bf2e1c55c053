package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"ledger-api/internal/models"
	"ledger-api/internal/repository"
)

// ReconciliationEngine verifies the core ledger invariant: each stored
// wallet balance must equal the signed sum of that wallet's entries.
// It reports discrepancies but never mutates balances; a mismatch means
// a write path bypassed the ledger and needs human attention.
type ReconciliationEngine interface {
	ReconcileWallet(ctx context.Context, walletID primitive.ObjectID) (*ReconciliationResult, error)
	ReconcileAllWallets(ctx context.Context, batchSize int) (*BatchReconciliationResult, error)
}

type reconciliationEngine struct {
	walletRepo  repository.WalletRepository
	entryRepo   repository.EntryRepository
	lockManager repository.LockManager
}

func NewReconciliationEngine(
	walletRepo repository.WalletRepository,
	entryRepo repository.EntryRepository,
	lockManager repository.LockManager,
) ReconciliationEngine {
	return &reconciliationEngine{
		walletRepo:  walletRepo,
		entryRepo:   entryRepo,
		lockManager: lockManager,
	}
}

type ReconciliationResult struct {
	WalletID           primitive.ObjectID `json:"wallet_id"`
	StoredBalance      decimal.Decimal    `json:"stored_balance"`
	CalculatedBalance  decimal.Decimal    `json:"calculated_balance"`
	Discrepancy        decimal.Decimal    `json:"discrepancy"`
	EntryCount         int64              `json:"entry_count"`
	Checksum           string             `json:"checksum"`
	ReconciliationTime time.Time          `json:"reconciliation_time"`
	Status             string             `json:"status"` // "success", "discrepancy_found", "error"
	ErrorMessage       string             `json:"error_message,omitempty"`
}

type BatchReconciliationResult struct {
	TotalWallets        int                      `json:"total_wallets"`
	ReconciledWallets   int                      `json:"reconciled_wallets"`
	DiscrepanciesFound  int                      `json:"discrepancies_found"`
	ErrorsEncountered   int                      `json:"errors_encountered"`
	Results             []*ReconciliationResult  `json:"results"`
	BatchStartTime      time.Time                `json:"batch_start_time"`
	BatchEndTime        time.Time                `json:"batch_end_time"`
	TotalProcessingTime time.Duration            `json:"total_processing_time"`
}

func (e *reconciliationEngine) ReconcileWallet(ctx context.Context, walletID primitive.ObjectID) (*ReconciliationResult, error) {
	// Lock out concurrent mutations so the entry sum and the stored
	// balance are read from the same consistent state.
	lock, err := e.lockManager.LockWallet(ctx, walletID.Hex())
	if err != nil {
		return &ReconciliationResult{
			WalletID:     walletID,
			Status:       "error",
			ErrorMessage: fmt.Sprintf("failed to acquire wallet lock: %v", err),
		}, nil
	}
	defer e.lockManager.Release(ctx, lock)

	now := time.Now()

	wallet, err := e.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return &ReconciliationResult{
			WalletID:     walletID,
			Status:       "error",
			ErrorMessage: fmt.Sprintf("failed to get wallet: %v", err),
		}, nil
	}

	entries, err := e.entryRepo.SumByWalletID(ctx, walletID)
	if err != nil {
		return &ReconciliationResult{
			WalletID:     walletID,
			Status:       "error",
			ErrorMessage: fmt.Sprintf("failed to get ledger entries: %v", err),
		}, nil
	}

	calculated := decimal.Zero
	for _, entry := range entries {
		calculated = calculated.Add(entry.SignedAmount())
	}

	discrepancy := wallet.Balance.Sub(calculated)

	result := &ReconciliationResult{
		WalletID:           walletID,
		StoredBalance:      wallet.Balance,
		CalculatedBalance:  calculated,
		Discrepancy:        discrepancy,
		EntryCount:         int64(len(entries)),
		Checksum:           e.generateChecksum(wallet, len(entries)),
		ReconciliationTime: now,
	}

	if discrepancy.IsZero() {
		result.Status = "success"
	} else {
		result.Status = "discrepancy_found"
	}

	return result, nil
}

func (e *reconciliationEngine) ReconcileAllWallets(ctx context.Context, batchSize int) (*BatchReconciliationResult, error) {
	startTime := time.Now()

	result := &BatchReconciliationResult{
		BatchStartTime: startTime,
		Results:        make([]*ReconciliationResult, 0),
	}

	if batchSize <= 0 {
		batchSize = 100
	}

	// batchSize bounds each page; the loop keeps going until the last
	// short page so no wallet is skipped.
	for offset := 0; ; offset += batchSize {
		wallets, err := e.walletRepo.List(ctx, batchSize, offset)
		if err != nil {
			return result, fmt.Errorf("failed to list wallets for reconciliation: %w", err)
		}

		result.TotalWallets += len(wallets)

		for _, wallet := range wallets {
			walletResult, err := e.ReconcileWallet(ctx, wallet.ID)
			if err != nil {
				result.ErrorsEncountered++
				continue
			}

			result.Results = append(result.Results, walletResult)

			switch walletResult.Status {
			case "success":
				result.ReconciledWallets++
			case "discrepancy_found":
				result.DiscrepanciesFound++
			case "error":
				result.ErrorsEncountered++
			}
		}

		if len(wallets) < batchSize {
			break
		}
	}

	result.BatchEndTime = time.Now()
	result.TotalProcessingTime = result.BatchEndTime.Sub(result.BatchStartTime)

	return result, nil
}

func (e *reconciliationEngine) generateChecksum(wallet *models.Wallet, entryCount int) string {
	data := fmt.Sprintf("wallet:%s:balance:%s:entries:%d",
		wallet.ID.Hex(),
		wallet.Balance.String(),
		entryCount,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
