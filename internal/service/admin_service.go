package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"ledger-api/internal/engine"
	"ledger-api/internal/models"
	"ledger-api/internal/repository"
	"ledger-api/pkg/errors"
)

// AdminService covers operator-facing surfaces: reconciliation runs and
// wallet oversight. Withdrawal decisions live on WithdrawalService.
type AdminService interface {
	ReconcileWallet(ctx context.Context, userID int64) (*engine.ReconciliationResult, error)
	ReconcileAllWallets(ctx context.Context, batchSize int) (*engine.BatchReconciliationResult, error)
	ListWallets(ctx context.Context, limit, offset int) (*ListWalletsResponse, error)
}

type adminService struct {
	walletRepo     repository.WalletRepository
	reconciliation engine.ReconciliationEngine
	logger         *logrus.Logger
}

func NewAdminService(
	walletRepo repository.WalletRepository,
	reconciliation engine.ReconciliationEngine,
	logger *logrus.Logger,
) AdminService {
	return &adminService{
		walletRepo:     walletRepo,
		reconciliation: reconciliation,
		logger:         logger,
	}
}

type ListWalletsResponse struct {
	Wallets []*models.Wallet `json:"wallets"`
	Total   int64            `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

func (s *adminService) ReconcileWallet(ctx context.Context, userID int64) (*engine.ReconciliationResult, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	result, err := s.reconciliation.ReconcileWallet(ctx, wallet.ID)
	if err != nil {
		return nil, err
	}

	if result.Status == "discrepancy_found" {
		s.logger.WithFields(logrus.Fields{
			"wallet_id":   result.WalletID.Hex(),
			"discrepancy": result.Discrepancy.String(),
		}).Error("Balance discrepancy detected")
	}

	return result, nil
}

func (s *adminService) ReconcileAllWallets(ctx context.Context, batchSize int) (*engine.BatchReconciliationResult, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	result, err := s.reconciliation.ReconcileAllWallets(ctx, batchSize)
	if err != nil {
		return nil, errors.NewInternalError(err.Error())
	}

	s.logger.WithFields(logrus.Fields{
		"total":         result.TotalWallets,
		"reconciled":    result.ReconciledWallets,
		"discrepancies": result.DiscrepanciesFound,
		"errors":        result.ErrorsEncountered,
	}).Info("Batch reconciliation completed")

	return result, nil
}

func (s *adminService) ListWallets(ctx context.Context, limit, offset int) (*ListWalletsResponse, error) {
	limit, offset = normalizePage(limit, offset)

	wallets, err := s.walletRepo.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	total, err := s.walletRepo.Count(ctx)
	if err != nil {
		return nil, err
	}

	return &ListWalletsResponse{
		Wallets: wallets,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}, nil
}
