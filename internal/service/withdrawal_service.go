package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ledger-api/internal/cache"
	"ledger-api/internal/engine"
	"ledger-api/internal/messaging"
	"ledger-api/internal/models"
	"ledger-api/internal/monitoring"
	"ledger-api/internal/repository"
	"ledger-api/pkg/errors"
)

type WithdrawalService interface {
	RequestWithdrawal(ctx context.Context, req *WithdrawalRequest) (*models.Withdrawal, error)
	DecideWithdrawal(ctx context.Context, req *WithdrawalDecision) (*models.Withdrawal, error)
	GetWithdrawal(ctx context.Context, withdrawalID string) (*models.Withdrawal, error)
	ListUserWithdrawals(ctx context.Context, userID int64, limit, offset int) ([]*models.Withdrawal, error)
	ListPendingWithdrawals(ctx context.Context, limit, offset int) ([]*models.Withdrawal, error)
}

type withdrawalService struct {
	withdrawalRepo repository.WithdrawalRepository
	walletRepo     repository.WalletRepository
	ledger         engine.LedgerEngine
	lockManager    repository.LockManager
	txRunner       engine.TxRunner
	cache          cache.WalletCache
	publisher      messaging.EventPublisher
	logger         *logrus.Logger
}

func NewWithdrawalService(
	withdrawalRepo repository.WithdrawalRepository,
	walletRepo repository.WalletRepository,
	ledger engine.LedgerEngine,
	lockManager repository.LockManager,
	txRunner engine.TxRunner,
	walletCache cache.WalletCache,
	publisher messaging.EventPublisher,
	logger *logrus.Logger,
) WithdrawalService {
	return &withdrawalService{
		withdrawalRepo: withdrawalRepo,
		walletRepo:     walletRepo,
		ledger:         ledger,
		lockManager:    lockManager,
		txRunner:       txRunner,
		cache:          walletCache,
		publisher:      publisher,
		logger:         logger,
	}
}

type WithdrawalRequest struct {
	UserID      int64           `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
}

type WithdrawalDecision struct {
	WithdrawalID string `json:"withdrawal_id"`
	Approve      bool   `json:"approve"`
	AdminID      int64  `json:"admin_id"`
}

// RequestWithdrawal records a pending request. No funds are held; the
// balance is only checked when the request is decided, so a request can
// exceed the current balance.
func (s *withdrawalService) RequestWithdrawal(ctx context.Context, req *WithdrawalRequest) (*models.Withdrawal, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.ErrInvalidAmount
	}

	if _, err := s.ledger.GetOrCreateWallet(ctx, req.UserID); err != nil {
		return nil, err
	}

	withdrawal := models.NewWithdrawal(req.UserID, req.Amount, req.Destination)
	if err := withdrawal.Validate(); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	if err := s.withdrawalRepo.Create(ctx, withdrawal); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"withdrawal_id": withdrawal.WithdrawalID,
		"user_id":       req.UserID,
		"amount":        req.Amount.String(),
	}).Info("Withdrawal requested")

	s.publisher.PublishWithdrawalRequested(ctx, withdrawal)

	return withdrawal, nil
}

// DecideWithdrawal approves or declines a pending request exactly once.
// The user lock serializes concurrent decisions on the same request. An
// approval that fails the balance check leaves the request pending so
// it can be retried after a deposit.
func (s *withdrawalService) DecideWithdrawal(ctx context.Context, req *WithdrawalDecision) (*models.Withdrawal, error) {
	withdrawal, err := s.withdrawalRepo.GetByWithdrawalID(ctx, req.WithdrawalID)
	if err != nil {
		return nil, err
	}

	lock, err := s.lockManager.LockUser(ctx, withdrawal.UserID)
	if err != nil {
		return nil, err
	}
	defer s.lockManager.Release(ctx, lock)

	withdrawal, err = s.withdrawalRepo.GetByWithdrawalID(ctx, req.WithdrawalID)
	if err != nil {
		return nil, err
	}

	if withdrawal.IsProcessed() {
		return nil, errors.ErrWithdrawalAlreadyProcessed
	}

	if !req.Approve {
		withdrawal.MarkDecided(models.WithdrawalStatusDecline, req.AdminID)
		if err := s.withdrawalRepo.Update(ctx, withdrawal); err != nil {
			return nil, err
		}

		s.logger.WithFields(logrus.Fields{
			"withdrawal_id": withdrawal.WithdrawalID,
			"admin_id":      req.AdminID,
		}).Info("Withdrawal declined")

		s.publisher.PublishWithdrawalDecided(ctx, withdrawal)
		return withdrawal, nil
	}

	// The debit and the SUCCESS transition commit together; a failure
	// of either leaves the wallet untouched and the request pending.
	err = s.txRunner.WithTransaction(ctx, func(txCtx context.Context) error {
		wallet, err := s.walletRepo.GetByUserID(txCtx, withdrawal.UserID)
		if err != nil {
			return err
		}

		if _, err := s.ledger.ApplyDebit(txCtx, wallet, withdrawal.Amount,
			models.EntryKindWithdrawal, fmt.Sprintf("withdrawal:%s", withdrawal.WithdrawalID)); err != nil {
			return err
		}

		withdrawal.MarkDecided(models.WithdrawalStatusSuccess, req.AdminID)
		return s.withdrawalRepo.Update(txCtx, withdrawal)
	})
	if err != nil {
		monitoring.RecordLedgerOperation("withdrawal", "failed")
		return nil, err
	}

	s.cache.InvalidateWallet(ctx, withdrawal.UserID)
	monitoring.RecordLedgerOperation("withdrawal", "success")

	s.logger.WithFields(logrus.Fields{
		"withdrawal_id": withdrawal.WithdrawalID,
		"admin_id":      req.AdminID,
		"amount":        withdrawal.Amount.String(),
	}).Info("Withdrawal approved")

	s.publisher.PublishWithdrawalDecided(ctx, withdrawal)

	return withdrawal, nil
}

func (s *withdrawalService) GetWithdrawal(ctx context.Context, withdrawalID string) (*models.Withdrawal, error) {
	return s.withdrawalRepo.GetByWithdrawalID(ctx, withdrawalID)
}

func (s *withdrawalService) ListUserWithdrawals(ctx context.Context, userID int64, limit, offset int) ([]*models.Withdrawal, error) {
	limit, offset = normalizePage(limit, offset)
	return s.withdrawalRepo.GetByUserID(ctx, userID, limit, offset)
}

func (s *withdrawalService) ListPendingWithdrawals(ctx context.Context, limit, offset int) ([]*models.Withdrawal, error) {
	limit, offset = normalizePage(limit, offset)
	return s.withdrawalRepo.GetByStatus(ctx, models.WithdrawalStatusPending, limit, offset)
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
