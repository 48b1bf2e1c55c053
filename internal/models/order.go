package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderType represents the side of an order.
type OrderType string

const (
	OrderTypeBuy  OrderType = "BUY"
	OrderTypeSell OrderType = "SELL"
)

// OrderStatus represents the settlement state of an order.
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "PENDING"
	OrderStatusSuccess OrderStatus = "SUCCESS"
	OrderStatusFailed  OrderStatus = "FAILED"
)

// Order represents a market order awaiting or past settlement.
// Price is the total notional (Quantity * UnitPrice) captured at
// placement time.
type Order struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	OrderID   string             `bson:"order_id" json:"order_id"`
	UserID    int64              `bson:"user_id" json:"user_id"`
	CoinID    string             `bson:"coin_id" json:"coin_id"`
	Type      OrderType          `bson:"type" json:"type"`
	Quantity  decimal.Decimal    `bson:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal    `bson:"unit_price" json:"unit_price"`
	Price     decimal.Decimal    `bson:"price" json:"price"`
	Status    OrderStatus        `bson:"status" json:"status"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// NewOrder creates a pending order with its notional precomputed.
func NewOrder(userID int64, coinID string, orderType OrderType, quantity, unitPrice decimal.Decimal) *Order {
	now := time.Now()
	return &Order{
		OrderID:   generateOrderID(),
		UserID:    userID,
		CoinID:    coinID,
		Type:      orderType,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		Price:     quantity.Mul(unitPrice),
		Status:    OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsFinal reports whether the order has already settled one way or the
// other. Final orders never change status again.
func (o *Order) IsFinal() bool {
	return o.Status == OrderStatusSuccess || o.Status == OrderStatusFailed
}

// Validate validates the order data.
func (o *Order) Validate() error {
	if o.UserID <= 0 {
		return fmt.Errorf("invalid user ID")
	}

	if o.CoinID == "" {
		return fmt.Errorf("coin ID is required")
	}

	if o.Type != OrderTypeBuy && o.Type != OrderTypeSell {
		return fmt.Errorf("invalid order type: %s", o.Type)
	}

	if o.Quantity.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("quantity must be positive")
	}

	if o.UnitPrice.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("unit price must be positive")
	}

	return nil
}

func generateOrderID() string {
	return "ORD-" + primitive.NewObjectID().Hex()
}
