package delivery

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/usemox/mox/internal/mailsync"
)

// SyncHandler controls the sync of the authenticated account.
type SyncHandler struct {
	orch *mailsync.Orchestrator
}

func NewSyncHandler(orch *mailsync.Orchestrator) *SyncHandler {
	return &SyncHandler{orch: orch}
}

func (h *SyncHandler) Register(r gin.IRoutes) {
	r.POST("/sync/start", h.Start)
	r.POST("/sync/stop", h.Stop)
	r.GET("/sync/status", h.Status)
}

// POST /api/sync/start
func (h *SyncHandler) Start(c *gin.Context) {
	h.orch.StartAsync(c.GetString("accountID"))
	c.JSON(http.StatusAccepted, gin.H{"message": "sync started"})
}

// POST /api/sync/stop
func (h *SyncHandler) Stop(c *gin.Context) {
	h.orch.Stop(c.Request.Context(), c.GetString("accountID"))
	c.JSON(http.StatusOK, gin.H{"message": "sync stopped"})
}

// GET /api/sync/status
func (h *SyncHandler) Status(c *gin.Context) {
	status, err := h.orch.Status(c.Request.Context(), c.GetString("accountID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}
