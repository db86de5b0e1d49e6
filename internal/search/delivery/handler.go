package delivery

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/usemox/mox/internal/search"
)

type SearchHandler struct {
	service *search.Service
}

func NewSearchHandler(s *search.Service) *SearchHandler {
	return &SearchHandler{service: s}
}

func (h *SearchHandler) Register(r gin.IRoutes) {
	r.GET("/search", h.Search)
	r.GET("/search/suggestions", h.Suggestions)
	r.POST("/ask", h.Ask)
}

// Search ranks stored mail by embedding distance to the query
// GET /api/search?q=...&k=5
func (h *SearchHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
		return
	}
	k, _ := strconv.Atoi(c.DefaultQuery("k", "5"))

	results, err := h.service.Search(c.Request.Context(), c.GetString("accountID"), query, k)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if results == nil {
		results = []search.Result{}
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "results": results})
}

// GET /api/search/suggestions?q=...
func (h *SearchHandler) Suggestions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))
	suggestions, err := h.service.Suggest(c.Request.Context(), c.GetString("accountID"), c.Query("q"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

// POST /api/ask
func (h *SearchHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	answer, err := h.service.Ask(c.Request.Context(), c.GetString("accountID"), req.Question)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, answer)
}
