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

type OrderService interface {
	PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*OrderResponse, error)
	GetOrder(ctx context.Context, userID int64, orderID string) (*models.Order, error)
	ListOrders(ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error)
	GetPosition(ctx context.Context, userID int64, coinID string) (*models.AssetPosition, error)
	ListPositions(ctx context.Context, userID int64) ([]*models.AssetPosition, error)
}

type orderService struct {
	orderRepo  repository.OrderRepository
	settlement engine.SettlementEngine
	positions  engine.PositionTracker
	cache      cache.WalletCache
	publisher  messaging.EventPublisher
	logger     *logrus.Logger
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	settlement engine.SettlementEngine,
	positions engine.PositionTracker,
	walletCache cache.WalletCache,
	publisher messaging.EventPublisher,
	logger *logrus.Logger,
) OrderService {
	return &orderService{
		orderRepo:  orderRepo,
		settlement: settlement,
		positions:  positions,
		cache:      walletCache,
		publisher:  publisher,
		logger:     logger,
	}
}

type PlaceOrderRequest struct {
	UserID    int64           `json:"user_id"`
	CoinID    string          `json:"coin_id"`
	Type      string          `json:"type"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type OrderResponse struct {
	Order      *models.Order       `json:"order"`
	Entry      *models.LedgerEntry `json:"entry,omitempty"`
	NewBalance *decimal.Decimal    `json:"new_balance,omitempty"`
}

type ListOrdersRequest struct {
	UserID int64 `json:"user_id"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

type ListOrdersResponse struct {
	Orders []*models.Order `json:"orders"`
	Total  int64           `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// PlaceOrder creates a pending order and settles it immediately. Market
// orders settle synchronously; a business rejection surfaces as an error
// with the order left FAILED.
func (s *orderService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*OrderResponse, error) {
	order, err := s.settlement.PlaceOrder(ctx, &engine.PlaceOrderRequest{
		UserID:    req.UserID,
		CoinID:    req.CoinID,
		Type:      models.OrderType(req.Type),
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
	})
	if err != nil {
		return nil, err
	}

	result, err := s.settlement.SettleOrder(ctx, order.OrderID)
	if err != nil {
		monitoring.RecordLedgerOperation("order_settlement", "failed")
		s.logger.WithFields(logrus.Fields{
			"order_id": order.OrderID,
			"user_id":  req.UserID,
			"error":    err.Error(),
		}).Warn("Order settlement rejected")
		return nil, err
	}

	s.cache.InvalidateWallet(ctx, req.UserID)
	monitoring.RecordLedgerOperation("order_settlement", "success")

	s.logger.WithFields(logrus.Fields{
		"order_id": result.Order.OrderID,
		"user_id":  req.UserID,
		"type":     string(result.Order.Type),
		"coin_id":  result.Order.CoinID,
	}).Info("Order settled")

	s.publisher.PublishOrderSettled(ctx, result.Order)
	if result.Entry != nil {
		s.publisher.PublishEntryCreated(ctx, result.Entry)
	}

	resp := &OrderResponse{Order: result.Order, Entry: result.Entry}
	if result.Wallet != nil {
		balance := result.Wallet.Balance
		resp.NewBalance = &balance
	}
	return resp, nil
}

func (s *orderService) GetOrder(ctx context.Context, userID int64, orderID string) (*models.Order, error) {
	order, err := s.orderRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.UserID != userID {
		return nil, errors.ErrOrderNotFound
	}

	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
	limit, offset := normalizePage(req.Limit, req.Offset)

	orders, err := s.orderRepo.GetByUserID(ctx, req.UserID, limit, offset)
	if err != nil {
		return nil, err
	}

	total, err := s.orderRepo.CountByUserID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	return &ListOrdersResponse{
		Orders: orders,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}, nil
}

func (s *orderService) GetPosition(ctx context.Context, userID int64, coinID string) (*models.AssetPosition, error) {
	return s.positions.GetPosition(ctx, userID, coinID)
}

func (s *orderService) ListPositions(ctx context.Context, userID int64) ([]*models.AssetPosition, error) {
	return s.positions.ListPositions(ctx, userID)
}
