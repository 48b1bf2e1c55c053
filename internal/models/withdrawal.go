package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WithdrawalStatus represents the review state of a withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalStatusPending WithdrawalStatus = "PENDING"
	WithdrawalStatusSuccess WithdrawalStatus = "SUCCESS"
	WithdrawalStatusDecline WithdrawalStatus = "DECLINE"
)

// Withdrawal represents a user request to take funds out of the ledger.
// No funds are reserved while the request is pending; the balance check
// happens when an operator decides the request.
type Withdrawal struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	WithdrawalID string             `bson:"withdrawal_id" json:"withdrawal_id"`
	UserID       int64              `bson:"user_id" json:"user_id"`
	Amount       decimal.Decimal    `bson:"amount" json:"amount"`
	Status       WithdrawalStatus   `bson:"status" json:"status"`
	Destination  string             `bson:"destination,omitempty" json:"destination,omitempty"`
	RequestedAt  time.Time          `bson:"requested_at" json:"requested_at"`
	DecidedAt    *time.Time         `bson:"decided_at,omitempty" json:"decided_at,omitempty"`
	DecidedBy    int64              `bson:"decided_by,omitempty" json:"decided_by,omitempty"`
}

// NewWithdrawal creates a pending withdrawal request.
func NewWithdrawal(userID int64, amount decimal.Decimal, destination string) *Withdrawal {
	return &Withdrawal{
		WithdrawalID: "WDL-" + primitive.NewObjectID().Hex(),
		UserID:       userID,
		Amount:       amount,
		Status:       WithdrawalStatusPending,
		Destination:  destination,
		RequestedAt:  time.Now(),
	}
}

// IsProcessed reports whether the request has already been decided.
func (w *Withdrawal) IsProcessed() bool {
	return w.Status != WithdrawalStatusPending
}

// MarkDecided records the decision and who made it.
func (w *Withdrawal) MarkDecided(status WithdrawalStatus, adminID int64) {
	now := time.Now()
	w.Status = status
	w.DecidedAt = &now
	w.DecidedBy = adminID
}

// Validate validates the withdrawal data.
func (w *Withdrawal) Validate() error {
	if w.UserID <= 0 {
		return fmt.Errorf("invalid user ID")
	}

	if w.Amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("amount must be positive")
	}

	return nil
}
