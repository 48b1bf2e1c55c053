package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Wallet represents a user's cash wallet. Exactly one wallet exists per
// user; it is created lazily with a zero balance on first access.
type Wallet struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID       int64              `bson:"user_id" json:"user_id"`
	WalletNumber string             `bson:"wallet_number" json:"wallet_number"`
	Balance      decimal.Decimal    `bson:"balance" json:"balance"`
	Currency     string             `bson:"currency" json:"currency"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// NewWallet creates a wallet with a zero balance for a user.
func NewWallet(userID int64) *Wallet {
	now := time.Now()
	return &Wallet{
		UserID:       userID,
		WalletNumber: fmt.Sprintf("WAL-%d-%06d", now.Year(), userID),
		Balance:      decimal.Zero,
		Currency:     "USD",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// HasSufficientBalance checks if the wallet can cover amount.
func (w *Wallet) HasSufficientBalance(amount decimal.Decimal) bool {
	return w.Balance.GreaterThanOrEqual(amount)
}

// Validate validates the wallet data.
func (w *Wallet) Validate() error {
	if w.UserID <= 0 {
		return fmt.Errorf("invalid user ID")
	}

	if w.WalletNumber == "" {
		return fmt.Errorf("wallet number is required")
	}

	if w.Balance.LessThan(decimal.Zero) {
		return fmt.Errorf("balance cannot be negative")
	}

	if w.Currency == "" {
		return fmt.Errorf("currency is required")
	}

	return nil
}
