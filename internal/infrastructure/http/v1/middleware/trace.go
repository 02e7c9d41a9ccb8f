package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appctx "ordertx/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
	HeaderActorID   = "X-Actor-ID"
)

// Trace puts request and trace IDs into the request context, generating them
// when the client did not send any, and echoes them in the response.
// X-Actor-ID, when present, becomes the actor recorded in the audit trail.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		traceID := c.GetHeader(HeaderTraceID)
		if traceID == "" {
			traceID = uuid.New().String()
		}

		ctx := appctx.WithTrace(c.Request.Context(), &appctx.TraceContext{
			TraceID:   traceID,
			RequestID: requestID,
		})
		if actor := strings.TrimSpace(c.GetHeader(HeaderActorID)); actor != "" {
			ctx = appctx.WithActor(ctx, &appctx.Actor{ID: actor})
		}
		c.Request = c.Request.WithContext(ctx)

		c.Header(HeaderRequestID, requestID)
		c.Header(HeaderTraceID, traceID)

		c.Next()
	}
}
