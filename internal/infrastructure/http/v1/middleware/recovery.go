// Package middleware provides HTTP middleware components.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"ordertx/internal/core/apperror"
	appctx "ordertx/internal/core/context"
	"ordertx/pkg/logger"
)

// Recovery turns a panic in a handler into an INTERNAL_ERROR registered on
// the context, rendered by ErrorHandler. The stack goes to the log only.
//
// http.ErrAbortHandler is re-raised so net/http drops the connection as it
// would without this middleware. A panic after the response has started
// only aborts the chain.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			ctx := c.Request.Context()
			logger.Error(ctx, "panic recovered",
				"method", c.Request.Method,
				"path", c.FullPath(),
				"panic", rec,
				"stack", string(debug.Stack()),
			)

			if !c.Writer.Written() {
				_ = c.Error(apperror.NewInternal(panicError(rec)).
					WithDetail("request_id", appctx.GetRequestID(ctx)))
			}
			c.Abort()
		}()
		c.Next()
	}
}

func panicError(rec any) error {
	if err, ok := rec.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", rec)
}
