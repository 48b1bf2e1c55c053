package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ledger-api/internal/models"
	"ledger-api/internal/repository"
	"ledger-api/pkg/errors"
)

// SettlementEngine turns pending orders into wallet and position
// changes. A settlement is all-or-nothing: the order status flip, the
// ledger entry, and the position change commit in one transaction under
// the user's lock. A business rejection (insufficient funds or
// quantity) marks the order FAILED and leaves wallet and positions
// untouched.
type SettlementEngine interface {
	PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*models.Order, error)
	SettleOrder(ctx context.Context, orderID string) (*SettlementResult, error)
}

type settlementEngine struct {
	orderRepo   repository.OrderRepository
	walletRepo  repository.WalletRepository
	ledger      LedgerEngine
	positions   PositionTracker
	lockManager repository.LockManager
	txRunner    TxRunner
}

func NewSettlementEngine(
	orderRepo repository.OrderRepository,
	walletRepo repository.WalletRepository,
	ledger LedgerEngine,
	positions PositionTracker,
	lockManager repository.LockManager,
	txRunner TxRunner,
) SettlementEngine {
	return &settlementEngine{
		orderRepo:   orderRepo,
		walletRepo:  walletRepo,
		ledger:      ledger,
		positions:   positions,
		lockManager: lockManager,
		txRunner:    txRunner,
	}
}

type PlaceOrderRequest struct {
	UserID    int64            `json:"user_id"`
	CoinID    string           `json:"coin_id"`
	Type      models.OrderType `json:"type"`
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
}

type SettlementResult struct {
	Order    *models.Order       `json:"order"`
	Entry    *models.LedgerEntry `json:"entry,omitempty"`
	Wallet   *models.Wallet      `json:"wallet,omitempty"`
	Position *SellResult         `json:"position,omitempty"`
}

func (e *settlementEngine) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*models.Order, error) {
	if req.Type != models.OrderTypeBuy && req.Type != models.OrderTypeSell {
		return nil, errors.ErrInvalidOrderType
	}
	if req.Quantity.LessThanOrEqual(decimal.Zero) {
		return nil, errors.ErrInvalidQuantity
	}
	if req.UnitPrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.ErrInvalidAmount
	}

	order := models.NewOrder(req.UserID, req.CoinID, req.Type, req.Quantity, req.UnitPrice)
	if err := order.Validate(); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	if err := e.orderRepo.Create(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

// SettleOrder moves a pending order to SUCCESS or FAILED. The transition
// happens exactly once; settling an already final order is a conflict.
func (e *settlementEngine) SettleOrder(ctx context.Context, orderID string) (*SettlementResult, error) {
	order, err := e.orderRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.IsFinal() {
		return nil, errors.ErrOrderAlreadySettled
	}

	lock, err := e.lockManager.LockUser(ctx, order.UserID)
	if err != nil {
		return nil, err
	}
	defer e.lockManager.Release(ctx, lock)

	result, settleErr := e.settle(ctx, order)
	if settleErr != nil {
		if isBusinessRejection(settleErr) {
			if err := e.markFailed(ctx, order); err != nil {
				return nil, err
			}
		}
		return nil, settleErr
	}

	return result, nil
}

func (e *settlementEngine) settle(ctx context.Context, order *models.Order) (*SettlementResult, error) {
	var result *SettlementResult

	err := e.txRunner.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := e.orderRepo.GetByOrderID(txCtx, order.OrderID)
		if err != nil {
			return err
		}
		if current.IsFinal() {
			return errors.ErrOrderAlreadySettled
		}

		wallet, err := e.walletRepo.GetByUserID(txCtx, current.UserID)
		if err != nil {
			return err
		}

		switch current.Type {
		case models.OrderTypeBuy:
			result, err = e.settleBuy(txCtx, current, wallet)
		case models.OrderTypeSell:
			result, err = e.settleSell(txCtx, current, wallet)
		default:
			err = errors.ErrInvalidOrderType
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	*order = *result.Order
	return result, nil
}

func (e *settlementEngine) settleBuy(ctx context.Context, order *models.Order, wallet *models.Wallet) (*SettlementResult, error) {
	entry, err := e.ledger.ApplyDebit(ctx, wallet, order.Price, models.EntryKindOrderDebit, settlementReference(order))
	if err != nil {
		return nil, err
	}

	position, err := e.positions.RecordBuy(ctx, order.UserID, order.CoinID, order.Quantity, order.UnitPrice)
	if err != nil {
		return nil, err
	}

	if err := e.finalize(ctx, order, models.OrderStatusSuccess); err != nil {
		return nil, err
	}

	return &SettlementResult{
		Order:    order,
		Entry:    entry,
		Wallet:   wallet,
		Position: &SellResult{Remaining: position},
	}, nil
}

func (e *settlementEngine) settleSell(ctx context.Context, order *models.Order, wallet *models.Wallet) (*SettlementResult, error) {
	sellResult, err := e.positions.RecordSell(ctx, order.UserID, order.CoinID, order.Quantity, order.UnitPrice)
	if err != nil {
		if err == errors.ErrPositionNotFound {
			return nil, errors.ErrInsufficientQuantity
		}
		return nil, err
	}

	entry, err := e.ledger.ApplyCredit(ctx, wallet, order.Price, models.EntryKindOrderCredit, settlementReference(order))
	if err != nil {
		return nil, err
	}

	if err := e.finalize(ctx, order, models.OrderStatusSuccess); err != nil {
		return nil, err
	}

	return &SettlementResult{
		Order:    order,
		Entry:    entry,
		Wallet:   wallet,
		Position: sellResult,
	}, nil
}

func (e *settlementEngine) finalize(ctx context.Context, order *models.Order, status models.OrderStatus) error {
	order.Status = status
	order.UpdatedAt = time.Now()
	return e.orderRepo.Update(ctx, order)
}

func (e *settlementEngine) markFailed(ctx context.Context, order *models.Order) error {
	order.Status = models.OrderStatusFailed
	order.UpdatedAt = time.Now()
	return e.orderRepo.Update(ctx, order)
}

func isBusinessRejection(err error) bool {
	return err == errors.ErrInsufficientFunds || err == errors.ErrInsufficientQuantity
}

func settlementReference(order *models.Order) string {
	return fmt.Sprintf("order:%s", order.OrderID)
}
