package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"ledger-api/internal/models"
	"ledger-api/internal/repository"
	"ledger-api/pkg/errors"
)

// PositionTracker maintains per-user asset holdings with weighted-average
// cost accounting. Its mutating methods run inside a caller-owned
// transaction and lock; the settlement engine composes them with wallet
// movements.
type PositionTracker interface {
	RecordBuy(ctx context.Context, userID int64, coinID string, quantity, unitPrice decimal.Decimal) (*models.AssetPosition, error)
	RecordSell(ctx context.Context, userID int64, coinID string, quantity, unitPrice decimal.Decimal) (*SellResult, error)
	GetPosition(ctx context.Context, userID int64, coinID string) (*models.AssetPosition, error)
	ListPositions(ctx context.Context, userID int64) ([]*models.AssetPosition, error)
}

// SellResult reports what remains of a position after a sell. Closed is
// true when the position was removed, either because it sold down to
// zero or because the residual value fell under the dust threshold; in
// that case Remaining is nil.
type SellResult struct {
	Remaining *models.AssetPosition `json:"remaining,omitempty"`
	Closed    bool                  `json:"closed"`
}

type positionTracker struct {
	positionRepo repository.PositionRepository
	dustValue    decimal.Decimal
}

func NewPositionTracker(positionRepo repository.PositionRepository, dustValue decimal.Decimal) PositionTracker {
	return &positionTracker{
		positionRepo: positionRepo,
		dustValue:    dustValue,
	}
}

func (t *positionTracker) RecordBuy(ctx context.Context, userID int64, coinID string, quantity, unitPrice decimal.Decimal) (*models.AssetPosition, error) {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, errors.ErrInvalidQuantity
	}
	if unitPrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.ErrInvalidAmount
	}

	position, err := t.positionRepo.Get(ctx, userID, coinID)
	if err != nil {
		if err != errors.ErrPositionNotFound {
			return nil, err
		}
		position = models.NewAssetPosition(userID, coinID, quantity, unitPrice)
	} else {
		position.ApplyBuy(quantity, unitPrice)
	}

	if err := t.positionRepo.Upsert(ctx, position); err != nil {
		return nil, err
	}

	return position, nil
}

// RecordSell reduces a position, closing it when the quantity hits zero
// or the residual market value at the sell price is dust. The cost basis
// of whatever remains is untouched.
func (t *positionTracker) RecordSell(ctx context.Context, userID int64, coinID string, quantity, unitPrice decimal.Decimal) (*SellResult, error) {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, errors.ErrInvalidQuantity
	}

	position, err := t.positionRepo.Get(ctx, userID, coinID)
	if err != nil {
		return nil, err
	}

	if position.Quantity.LessThan(quantity) {
		return nil, errors.ErrInsufficientQuantity
	}

	position.ApplySell(quantity)

	if position.Quantity.IsZero() || position.ValueAt(unitPrice).LessThanOrEqual(t.dustValue) {
		if err := t.positionRepo.Delete(ctx, userID, coinID); err != nil {
			return nil, err
		}
		return &SellResult{Closed: true}, nil
	}

	if err := t.positionRepo.Upsert(ctx, position); err != nil {
		return nil, err
	}

	return &SellResult{Remaining: position}, nil
}

func (t *positionTracker) GetPosition(ctx context.Context, userID int64, coinID string) (*models.AssetPosition, error) {
	return t.positionRepo.Get(ctx, userID, coinID)
}

func (t *positionTracker) ListPositions(ctx context.Context, userID int64) ([]*models.AssetPosition, error) {
	return t.positionRepo.GetByUserID(ctx, userID)
}
