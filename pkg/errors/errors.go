package errors

import (
	"fmt"
	"net/http"
)

type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return e.Message
}

func NewAppError(code int, message string, details ...string) *AppError {
	var detail string
	if len(details) > 0 {
		detail = details[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Details: detail,
	}
}

func NewValidationError(message string, details ...string) *AppError {
	return NewAppError(http.StatusBadRequest, message, details...)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(http.StatusNotFound, fmt.Sprintf("%s not found", resource))
}

func NewConflictError(message string) *AppError {
	return NewAppError(http.StatusConflict, message)
}

func NewUnauthorizedError(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, message)
}

func NewForbiddenError(message string) *AppError {
	return NewAppError(http.StatusForbidden, message)
}

func NewInternalError(message string, details ...string) *AppError {
	return NewAppError(http.StatusInternalServerError, message, details...)
}

// Ledger and settlement error taxonomy. Every failure aborts the enclosing
// operation with no persisted side effects, so callers may retry after any
// of these.
var (
	ErrInsufficientFunds          = NewConflictError("Insufficient funds")
	ErrInsufficientQuantity       = NewConflictError("Insufficient quantity to sell")
	ErrWalletNotFound             = NewNotFoundError("Wallet")
	ErrPositionNotFound           = NewNotFoundError("Asset position")
	ErrOrderNotFound              = NewNotFoundError("Order")
	ErrWithdrawalNotFound         = NewNotFoundError("Withdrawal")
	ErrWithdrawalAlreadyProcessed = NewConflictError("Withdrawal already processed")
	ErrOrderAlreadySettled        = NewConflictError("Order already settled")
	ErrInvalidAmount              = NewValidationError("Amount must be greater than zero")
	ErrInvalidQuantity            = NewValidationError("Quantity must be greater than zero")
	ErrSameWallet                 = NewValidationError("Cannot transfer to the same wallet")
	ErrInvalidOrderType           = NewValidationError("Invalid order type")
)
