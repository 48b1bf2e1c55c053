package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"ledger-api/internal/service"
	"ledger-api/pkg/errors"
)

type OrderController struct {
	orderService service.OrderService
}

func NewOrderController(orderService service.OrderService) *OrderController {
	return &OrderController{
		orderService: orderService,
	}
}

type PlaceOrderRequest struct {
	CoinID    string          `json:"coin_id" binding:"required,min=1,max=64"`
	Type      string          `json:"type" binding:"required,oneof=BUY SELL"`
	Quantity  decimal.Decimal `json:"quantity" binding:"dgt0"`
	UnitPrice decimal.Decimal `json:"unit_price" binding:"dgt0"`
}

// PlaceOrder creates and settles a market order for the authenticated
// user. Rejected orders come back as a conflict with the order left in
// FAILED state.
func (c *OrderController) PlaceOrder(ctx *gin.Context) {
	userID, err := authenticatedUserID(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}

	var req PlaceOrderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondError(ctx, errors.NewValidationError("Invalid request format", err.Error()))
		return
	}

	result, err := c.orderService.PlaceOrder(ctx.Request.Context(), &service.PlaceOrderRequest{
		UserID:    userID,
		CoinID:    req.CoinID,
		Type:      req.Type,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, result)
}

func (c *OrderController) GetOrder(ctx *gin.Context) {
	userID, err := authenticatedUserID(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}

	order, err := c.orderService.GetOrder(ctx.Request.Context(), userID, ctx.Param("orderId"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, order)
}

func (c *OrderController) ListOrders(ctx *gin.Context) {
	userID, err := authenticatedUserID(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}

	limit, offset := paginationFromQuery(ctx)
	orders, err := c.orderService.ListOrders(ctx.Request.Context(), &service.ListOrdersRequest{
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, orders)
}

func (c *OrderController) GetPosition(ctx *gin.Context) {
	userID, err := authenticatedUserID(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}

	position, err := c.orderService.GetPosition(ctx.Request.Context(), userID, ctx.Param("coinId"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, position)
}

func (c *OrderController) ListPositions(ctx *gin.Context) {
	userID, err := authenticatedUserID(ctx)
	if err != nil {
		respondError(ctx, err)
		return
	}

	positions, err := c.orderService.ListPositions(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"positions": positions,
		"total":     len(positions),
	})
}
