package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"ledger-api/pkg/errors"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		// Decimal amounts cannot use the numeric gt tags, so they get
		// their own validation.
		_ = v.RegisterValidation("dgt0", func(fl validator.FieldLevel) bool {
			d, ok := fl.Field().Interface().(decimal.Decimal)
			return ok && d.IsPositive()
		})
	}
}

// ErrorResponse is the JSON error envelope returned by every handler.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// respondError maps application errors to HTTP responses. AppError
// codes translate directly; anything else is a 500.
func respondError(ctx *gin.Context, err error) {
	if appErr, ok := err.(*errors.AppError); ok {
		ctx.JSON(appErr.Code, ErrorResponse{
			Error:   http.StatusText(appErr.Code),
			Message: appErr.Message,
			Details: appErr.Details,
		})
		return
	}
	ctx.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "Internal Server Error",
		Message: "An unexpected error occurred",
	})
}

func userIDFromPath(ctx *gin.Context) (int64, error) {
	userID, err := strconv.ParseInt(ctx.Param("userId"), 10, 64)
	if err != nil || userID <= 0 {
		return 0, errors.NewValidationError("Invalid user ID", "user ID must be a positive integer")
	}
	return userID, nil
}

func authenticatedUserID(ctx *gin.Context) (int64, error) {
	value, exists := ctx.Get("user_id")
	if !exists {
		return 0, errors.NewUnauthorizedError("Authentication required")
	}
	userID, ok := value.(int64)
	if !ok || userID <= 0 {
		return 0, errors.NewUnauthorizedError("Invalid authentication context")
	}
	return userID, nil
}

func paginationFromQuery(ctx *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	offset, _ = strconv.Atoi(ctx.DefaultQuery("offset", "0"))
	return limit, offset
}
