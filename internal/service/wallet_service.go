package service

import (
	"context"

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

type WalletService interface {
	CreateWallet(ctx context.Context, userID int64) (*models.Wallet, error)
	GetWallet(ctx context.Context, userID int64) (*models.Wallet, error)
	GetBalance(ctx context.Context, userID int64) (*BalanceResponse, error)
	Deposit(ctx context.Context, req *DepositRequest) (*MovementResponse, error)
	Transfer(ctx context.Context, req *TransferRequest) (*TransferResponse, error)
	GetEntryHistory(ctx context.Context, req *EntryHistoryRequest) (*EntryHistoryResponse, error)
}

type walletService struct {
	walletRepo repository.WalletRepository
	entryRepo  repository.EntryRepository
	ledger     engine.LedgerEngine
	cache      cache.WalletCache
	publisher  messaging.EventPublisher
	logger     *logrus.Logger
}

func NewWalletService(
	walletRepo repository.WalletRepository,
	entryRepo repository.EntryRepository,
	ledger engine.LedgerEngine,
	walletCache cache.WalletCache,
	publisher messaging.EventPublisher,
	logger *logrus.Logger,
) WalletService {
	return &walletService{
		walletRepo: walletRepo,
		entryRepo:  entryRepo,
		ledger:     ledger,
		cache:      walletCache,
		publisher:  publisher,
		logger:     logger,
	}
}

type BalanceResponse struct {
	WalletID string          `json:"wallet_id"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

type DepositRequest struct {
	UserID    int64           `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

type MovementResponse struct {
	Entry      *models.LedgerEntry `json:"entry"`
	NewBalance decimal.Decimal     `json:"new_balance"`
}

type TransferRequest struct {
	FromUserID int64           `json:"from_user_id"`
	ToWalletID string          `json:"to_wallet_id"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference"`
}

type TransferResponse struct {
	DebitEntry  *models.LedgerEntry `json:"debit_entry"`
	CreditEntry *models.LedgerEntry `json:"credit_entry"`
	NewBalance  decimal.Decimal     `json:"new_balance"`
}

type EntryHistoryRequest struct {
	UserID int64 `json:"user_id"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

type EntryHistoryResponse struct {
	Entries []*models.LedgerEntry `json:"entries"`
	Total   int64                 `json:"total"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

func (s *walletService) CreateWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	if userID <= 0 {
		return nil, errors.NewValidationError("Invalid user ID")
	}

	if existing, err := s.walletRepo.GetByUserID(ctx, userID); err == nil {
		return existing, nil
	}

	wallet := models.NewWallet(userID)
	if err := wallet.Validate(); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	if err := s.walletRepo.Create(ctx, wallet); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":   userID,
		"wallet_id": wallet.ID.Hex(),
	}).Info("Wallet created")

	s.publisher.PublishWalletCreated(ctx, wallet)

	return wallet, nil
}

func (s *walletService) GetWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	if cached, found := s.cache.GetWallet(ctx, userID); found {
		return cached, nil
	}

	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.cache.SetWallet(ctx, wallet)
	return wallet, nil
}

func (s *walletService) GetBalance(ctx context.Context, userID int64) (*BalanceResponse, error) {
	wallet, err := s.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &BalanceResponse{
		WalletID: wallet.ID.Hex(),
		Balance:  wallet.Balance,
		Currency: wallet.Currency,
	}, nil
}

func (s *walletService) Deposit(ctx context.Context, req *DepositRequest) (*MovementResponse, error) {
	result, err := s.ledger.Deposit(ctx, &engine.DepositRequest{
		UserID:    req.UserID,
		Amount:    req.Amount,
		Reference: req.Reference,
	})
	if err != nil {
		monitoring.RecordLedgerOperation("deposit", "failed")
		return nil, err
	}

	s.cache.InvalidateWallet(ctx, req.UserID)
	monitoring.RecordLedgerOperation("deposit", "success")

	s.logger.WithFields(logrus.Fields{
		"user_id":  req.UserID,
		"entry_id": result.Entry.EntryID,
		"amount":   req.Amount.String(),
	}).Info("Deposit applied")

	s.publisher.PublishEntryCreated(ctx, result.Entry)

	return &MovementResponse{
		Entry:      result.Entry,
		NewBalance: result.Wallet.Balance,
	}, nil
}

func (s *walletService) Transfer(ctx context.Context, req *TransferRequest) (*TransferResponse, error) {
	result, err := s.ledger.Transfer(ctx, &engine.TransferRequest{
		FromUserID: req.FromUserID,
		ToWalletID: req.ToWalletID,
		Amount:     req.Amount,
		Reference:  req.Reference,
	})
	if err != nil {
		monitoring.RecordLedgerOperation("transfer", "failed")
		return nil, err
	}

	s.cache.InvalidateWallet(ctx, result.FromWallet.UserID)
	s.cache.InvalidateWallet(ctx, result.ToWallet.UserID)
	monitoring.RecordLedgerOperation("transfer", "success")

	s.logger.WithFields(logrus.Fields{
		"from_wallet": result.FromWallet.ID.Hex(),
		"to_wallet":   result.ToWallet.ID.Hex(),
		"amount":      req.Amount.String(),
	}).Info("Transfer completed")

	s.publisher.PublishEntryCreated(ctx, result.DebitEntry)
	s.publisher.PublishEntryCreated(ctx, result.CreditEntry)

	return &TransferResponse{
		DebitEntry:  result.DebitEntry,
		CreditEntry: result.CreditEntry,
		NewBalance:  result.FromWallet.Balance,
	}, nil
}

func (s *walletService) GetEntryHistory(ctx context.Context, req *EntryHistoryRequest) (*EntryHistoryResponse, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	limit, offset := normalizePage(req.Limit, req.Offset)

	entries, err := s.entryRepo.GetByWalletID(ctx, wallet.ID, limit, offset)
	if err != nil {
		return nil, err
	}

	total, err := s.entryRepo.CountByWalletID(ctx, wallet.ID)
	if err != nil {
		return nil, err
	}

	return &EntryHistoryResponse{
		Entries: entries,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}, nil
}
