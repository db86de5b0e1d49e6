package delivery

import (
	"net/http"

	"github.com/gin-gonic/gin"
	emaildto "github.com/usemox/mox/internal/email/dto"
	"github.com/usemox/mox/internal/email/usecase"
)

// SummaryHandler serves thread summaries
type SummaryHandler struct {
	worker *usecase.SummaryWorker
}

func NewSummaryHandler(worker *usecase.SummaryWorker) *SummaryHandler {
	return &SummaryHandler{worker: worker}
}

func (h *SummaryHandler) Register(r gin.IRoutes) {
	r.GET("/threads/:id/summary", h.Get)
	r.POST("/threads/summaries", h.Queue)
}

// Get returns the cached summary or generates one
// GET /api/threads/:id/summary
func (h *SummaryHandler) Get(c *gin.Context) {
	threadID := c.Param("id")
	summary, err := h.worker.ThreadSummary(c.Request.Context(), c.GetString("accountID"), threadID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread_id": threadID, "summary": summary})
}

// Queue returns cached summaries at once; the rest arrive as
// summary_ready events on /api/events.
// POST /api/threads/summaries
func (h *SummaryHandler) Queue(c *gin.Context) {
	var req emaildto.SummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.ThreadIDs) == 0 {
		c.JSON(http.StatusOK, gin.H{"summaries": map[string]string{}, "queued": 0})
		return
	}

	cached, queued, err := h.worker.QueueThreads(c.Request.Context(), c.GetString("accountID"), req.ThreadIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get summaries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summaries": cached, "queued": queued})
}
