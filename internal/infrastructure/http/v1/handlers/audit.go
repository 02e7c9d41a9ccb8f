package handlers

import (
	"github.com/gin-gonic/gin"

	"ordertx/internal/domain/audit"
	"ordertx/internal/infrastructure/http/v1/dto"
)

const defaultHistoryLimit = 50

// AuditHandler serves the audit trail.
type AuditHandler struct {
	*BaseHandler
	recorder *audit.Recorder
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(base *BaseHandler, recorder *audit.Recorder) *AuditHandler {
	return &AuditHandler{BaseHandler: base, recorder: recorder}
}

// History handles GET /audit/:entity/:id?limit=.
func (h *AuditHandler) History(c *gin.Context) {
	entityID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	limit := h.ParseIntQuery(c, "limit", defaultHistoryLimit)

	entries, err := h.recorder.History(c.Request.Context(), c.Param("entity"), entityID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": dto.FromAuditEntries(entries)})
}
