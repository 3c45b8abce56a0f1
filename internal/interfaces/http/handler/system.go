package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/syncbridge/backend/internal/infrastructure/persistence"
)

// SystemHandler serves health and readiness probes
type SystemHandler struct {
	BaseHandler
	db      *persistence.Database
	version string
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(db *persistence.Database, version string) *SystemHandler {
	return &SystemHandler{db: db, version: version}
}

// Health reports process liveness
func (h *SystemHandler) Health(c *gin.Context) {
	h.Success(c, gin.H{
		"status":  "ok",
		"version": h.version,
	})
}

// Ready reports whether the service can reach its database
func (h *SystemHandler) Ready(c *gin.Context) {
	if err := h.db.Ping(); err != nil {
		h.InternalError(c, "database unreachable")
		return
	}
	h.Success(c, gin.H{"status": "ready"})
}
