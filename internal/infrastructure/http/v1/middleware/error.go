package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ordertx/internal/core/apperror"
	appctx "ordertx/internal/core/context"
	"ordertx/internal/core/tx"
	"ordertx/pkg/logger"
)

// ErrorHandler renders the last error registered on the context as JSON.
// Handlers only call c.Error; this is the single place that writes error
// bodies.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		ctx := c.Request.Context()

		appErr, ok := toAppError(err)
		if !ok {
			logger.Error(ctx, "unhandled error", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    apperror.CodeInternal,
				"message": "Internal server error",
				"details": map[string]any{
					"request_id": appctx.GetRequestID(ctx),
				},
			})
			return
		}

		if appErr.Err != nil {
			logger.Error(ctx, "request error",
				"code", appErr.Code,
				"cause", appErr.Err,
			)
		}
		c.JSON(appErr.HTTPStatus, gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
			"details": appErr.Details,
		})
	}
}

// toAppError classifies err. Transaction outcomes win over the work's own
// error: a rolled-back transaction is reported as such even when the work
// failure that caused it is joined in.
func toAppError(err error) (*apperror.AppError, bool) {
	switch {
	case errors.Is(err, tx.ErrTransactionRolledBack):
		return apperror.NewTransactionRolledBack(err), true
	case errors.Is(err, tx.ErrIllegalTransactionState):
		return apperror.NewTransactionState(err), true
	case errors.Is(err, tx.ErrTransactionSystem):
		return apperror.NewDatabase(err), true
	}
	return apperror.AsAppError(err)
}
