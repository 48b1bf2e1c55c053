package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AssetPosition tracks how much of one coin a user holds and the blended
// purchase price of those units. One row per (user, coin); the row is
// deleted once the held quantity reaches zero or falls under the dust
// threshold.
type AssetPosition struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID      int64              `bson:"user_id" json:"user_id"`
	CoinID      string             `bson:"coin_id" json:"coin_id"`
	Quantity    decimal.Decimal    `bson:"quantity" json:"quantity"`
	AvgBuyPrice decimal.Decimal    `bson:"avg_buy_price" json:"avg_buy_price"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// NewAssetPosition creates a position from a first buy.
func NewAssetPosition(userID int64, coinID string, quantity, unitPrice decimal.Decimal) *AssetPosition {
	now := time.Now()
	return &AssetPosition{
		UserID:      userID,
		CoinID:      coinID,
		Quantity:    quantity,
		AvgBuyPrice: unitPrice,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ApplyBuy folds an additional purchase into the position using the
// weighted-average cost method:
//
//	newAvg = (oldAvg*oldQty + unitPrice*qty) / (oldQty + qty)
func (p *AssetPosition) ApplyBuy(quantity, unitPrice decimal.Decimal) {
	totalQty := p.Quantity.Add(quantity)
	totalCost := p.AvgBuyPrice.Mul(p.Quantity).Add(unitPrice.Mul(quantity))
	p.AvgBuyPrice = totalCost.Div(totalQty)
	p.Quantity = totalQty
	p.UpdatedAt = time.Now()
}

// ApplySell reduces the held quantity. Selling never changes the cost
// basis of the remaining units.
func (p *AssetPosition) ApplySell(quantity decimal.Decimal) {
	p.Quantity = p.Quantity.Sub(quantity)
	p.UpdatedAt = time.Now()
}

// ValueAt returns the market value of the position at a unit price.
func (p *AssetPosition) ValueAt(unitPrice decimal.Decimal) decimal.Decimal {
	return p.Quantity.Mul(unitPrice)
}

// Validate validates the position data.
func (p *AssetPosition) Validate() error {
	if p.UserID <= 0 {
		return fmt.Errorf("invalid user ID")
	}

	if p.CoinID == "" {
		return fmt.Errorf("coin ID is required")
	}

	if p.Quantity.LessThan(decimal.Zero) {
		return fmt.Errorf("quantity cannot be negative")
	}

	if p.AvgBuyPrice.LessThan(decimal.Zero) {
		return fmt.Errorf("average buy price cannot be negative")
	}

	return nil
}
