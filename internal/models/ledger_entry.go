package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EntryKind string
type EntryStatus string

const (
	EntryKindDeposit     EntryKind = "DEPOSIT"
	EntryKindWithdrawal  EntryKind = "WITHDRAWAL"
	EntryKindTransferIn  EntryKind = "TRANSFER_IN"
	EntryKindTransferOut EntryKind = "TRANSFER_OUT"
	EntryKindOrderDebit  EntryKind = "ORDER_DEBIT"
	EntryKindOrderCredit EntryKind = "ORDER_CREDIT"
)

// Only successful mutations are ever persisted; a failed operation leaves
// no entry behind.
const EntryStatusSuccess EntryStatus = "SUCCESS"

// LedgerEntry is the immutable record of a single balance-affecting event
// on one wallet. Amounts are stored positive; the sign is implied by Kind.
type LedgerEntry struct {
	ID                   primitive.ObjectID  `bson:"_id,omitempty" json:"id,omitempty"`
	EntryID              string              `bson:"entry_id" json:"entry_id"`
	WalletID             primitive.ObjectID  `bson:"wallet_id" json:"wallet_id"`
	CounterpartyWalletID *primitive.ObjectID `bson:"counterparty_wallet_id,omitempty" json:"counterparty_wallet_id,omitempty"`
	Amount               decimal.Decimal     `bson:"amount" json:"amount"`
	Kind                 EntryKind           `bson:"kind" json:"kind"`
	Status               EntryStatus         `bson:"status" json:"status"`
	Reference            string              `bson:"reference,omitempty" json:"reference,omitempty"`
	CreatedAt            time.Time           `bson:"created_at" json:"created_at"`
}

// NewLedgerEntry creates an entry for a successful balance mutation.
func NewLedgerEntry(walletID primitive.ObjectID, amount decimal.Decimal, kind EntryKind, reference string) *LedgerEntry {
	now := time.Now()
	return &LedgerEntry{
		EntryID:   "TXN-" + primitive.NewObjectID().Hex(),
		WalletID:  walletID,
		Amount:    amount,
		Kind:      kind,
		Status:    EntryStatusSuccess,
		Reference: reference,
		CreatedAt: now,
	}
}

// IsCredit reports whether the entry increases the wallet balance.
func (e *LedgerEntry) IsCredit() bool {
	switch e.Kind {
	case EntryKindDeposit, EntryKindTransferIn, EntryKindOrderCredit:
		return true
	}
	return false
}

// SignedAmount returns the amount with the sign implied by the entry kind.
// Summing signed amounts over a wallet's entries must reproduce its balance.
func (e *LedgerEntry) SignedAmount() decimal.Decimal {
	if e.IsCredit() {
		return e.Amount
	}
	return e.Amount.Neg()
}

// Validate validates the entry data.
func (e *LedgerEntry) Validate() error {
	if e.WalletID.IsZero() {
		return fmt.Errorf("wallet ID is required")
	}

	if e.Amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("entry amount must be positive")
	}

	switch e.Kind {
	case EntryKindDeposit, EntryKindWithdrawal, EntryKindTransferIn,
		EntryKindTransferOut, EntryKindOrderDebit, EntryKindOrderCredit:
	default:
		return fmt.Errorf("invalid entry kind: %s", e.Kind)
	}

	if e.Status != EntryStatusSuccess {
		return fmt.Errorf("invalid entry status: %s", e.Status)
	}

	return nil
}
