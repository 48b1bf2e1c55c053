package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"ledger-api/internal/service"
	"ledger-api/pkg/errors"
)

type WalletController struct {
	walletService service.WalletService
}

func NewWalletController(walletService service.WalletService) *WalletController {
	return &WalletController{
		walletService: walletService,
	}
}

type CreateWalletRequest struct {
	UserID int64 `json:"user_id" binding:"required,gt=0"`
}

type DepositRequest struct {
	Amount    decimal.Decimal `json:"amount" binding:"dgt0"`
	Reference string          `json:"reference" binding:"max=256"`
}

type TransferRequest struct {
	ToWalletID string          `json:"to_wallet_id" binding:"required"`
	Amount     decimal.Decimal `json:"amount" binding:"dgt0"`
	Reference  string          `json:"reference" binding:"max=256"`
}

// CreateWallet opens a wallet for a user. The call is idempotent: a
// second request for the same user returns the existing wallet.
func (c *WalletController) CreateWallet(ctx *gin.Context) {
	var req CreateWalletRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondError(ctx, errors.NewValidationError("Invalid request format", err.Error()))
		return
	}

	wallet, err := c.walletService.CreateWallet(ctx.Request.Context(), req.UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, wallet)
}

func (c *WalletController) GetWallet(ctx *gin.Context) {
	userID, err := userIDFromPath(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}

	wallet, err := c.walletService.GetWallet(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, wallet)
}

func (c *WalletController) GetBalance(ctx *gin.Context) {
	userID, err := userIDFromPath(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}

	balance, err := c.walletService.GetBalance(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, balance)
}

func (c *WalletController) Deposit(ctx *gin.Context) {
	userID, err := userIDFromPath(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}

	var req DepositRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondError(ctx, errors.NewValidationError("Invalid request format", err.Error()))
		return
	}

	result, err := c.walletService.Deposit(ctx.Request.Context(), &service.DepositRequest{
		UserID:    userID,
		Amount:    req.Amount,
		Reference: req.Reference,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

func (c *WalletController) Transfer(ctx *gin.Context) {
	userID, err := userIDFromPath(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}

	var req TransferRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondError(ctx, errors.NewValidationError("Invalid request format", err.Error()))
		return
	}

	result, err := c.walletService.Transfer(ctx.Request.Context(), &service.TransferRequest{
		FromUserID: userID,
		ToWalletID: req.ToWalletID,
		Amount:     req.Amount,
		Reference:  req.Reference,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

func (c *WalletController) GetEntryHistory(ctx *gin.Context) {
	userID, err := userIDFromPath(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}

	limit, offset := paginationFromQuery(ctx)
	history, err := c.walletService.GetEntryHistory(ctx.Request.Context(), &service.EntryHistoryRequest{
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, history)
}
