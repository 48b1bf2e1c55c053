package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"ledger-api/internal/service"
	"ledger-api/pkg/errors"
)

type WithdrawalController struct {
	withdrawalService service.WithdrawalService
}

func NewWithdrawalController(withdrawalService service.WithdrawalService) *WithdrawalController {
	return &WithdrawalController{
		withdrawalService: withdrawalService,
	}
}

type RequestWithdrawalRequest struct {
	Amount      decimal.Decimal `json:"amount" binding:"dgt0"`
	Destination string          `json:"destination" binding:"required,min=1,max=256"`
}

// RequestWithdrawal files a withdrawal request for later review. Funds
// are not held; the balance is checked when an admin approves.
func (c *WithdrawalController) RequestWithdrawal(ctx *gin.Context) {
	userID, err := authenticatedUserID(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}

	var req RequestWithdrawalRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondError(ctx, errors.NewValidationError("Invalid request format", err.Error()))
		return
	}

	withdrawal, err := c.withdrawalService.RequestWithdrawal(ctx.Request.Context(), &service.WithdrawalRequest{
		UserID:      userID,
		Amount:      req.Amount,
		Destination: req.Destination,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, withdrawal)
}

func (c *WithdrawalController) GetWithdrawal(ctx *gin.Context) {
	userID, err := authenticatedUserID(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}

	withdrawal, err := c.withdrawalService.GetWithdrawal(ctx.Request.Context(), ctx.Param("withdrawalId"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	role, _ := ctx.Get("role")
	if withdrawal.UserID != userID && role != "admin" {
		respondError(ctx, errors.ErrWithdrawalNotFound)
		return
	}

	ctx.JSON(http.StatusOK, withdrawal)
}

func (c *WithdrawalController) ListWithdrawals(ctx *gin.Context) {
	userID, err := authenticatedUserID(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}

	limit, offset := paginationFromQuery(ctx)
	withdrawals, err := c.withdrawalService.ListUserWithdrawals(ctx.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"withdrawals": withdrawals,
		"total":       len(withdrawals),
	})
}
