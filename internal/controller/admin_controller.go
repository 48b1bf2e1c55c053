package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ledger-api/internal/service"
	"ledger-api/pkg/errors"
)

type AdminController struct {
	adminService      service.AdminService
	withdrawalService service.WithdrawalService
}

func NewAdminController(adminService service.AdminService, withdrawalService service.WithdrawalService) *AdminController {
	return &AdminController{
		adminService:      adminService,
		withdrawalService: withdrawalService,
	}
}

type DecideWithdrawalRequest struct {
	Action string `json:"action" binding:"required,oneof=approve decline"`
}

// DecideWithdrawal approves or declines a pending withdrawal. Approval
// debits the wallet; if funds are insufficient the request stays
// pending and the error is surfaced.
func (c *AdminController) DecideWithdrawal(ctx *gin.Context) {
	adminID, err := authenticatedUserID(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}

	var req DecideWithdrawalRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondError(ctx, errors.NewValidationError("Invalid request format", err.Error()))
		return
	}

	withdrawal, err := c.withdrawalService.DecideWithdrawal(ctx.Request.Context(), &service.WithdrawalDecision{
		WithdrawalID: ctx.Param("withdrawalId"),
		Approve:      req.Action == "approve",
		AdminID:      adminID,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, withdrawal)
}

func (c *AdminController) ListPendingWithdrawals(ctx *gin.Context) {
	limit, offset := paginationFromQuery(ctx)
	withdrawals, err := c.withdrawalService.ListPendingWithdrawals(ctx.Request.Context(), limit, offset)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"withdrawals": withdrawals,
		"total":       len(withdrawals),
	})
}

func (c *AdminController) ReconcileWallet(ctx *gin.Context) {
	userID, err := userIDFromPath(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}

	result, err := c.adminService.ReconcileWallet(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

func (c *AdminController) ReconcileAllWallets(ctx *gin.Context) {
	batchSize, _ := strconv.Atoi(ctx.DefaultQuery("batch_size", "100"))

	result, err := c.adminService.ReconcileAllWallets(ctx.Request.Context(), batchSize)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

func (c *AdminController) ListWallets(ctx *gin.Context) {
	limit, offset := paginationFromQuery(ctx)
	wallets, err := c.adminService.ListWallets(ctx.Request.Context(), limit, offset)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, wallets)
}
