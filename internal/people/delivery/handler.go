package delivery

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/usemox/mox/internal/people/usecase"
)

type PeopleHandler struct {
	people usecase.PeopleUsecase
}

func NewPeopleHandler(people usecase.PeopleUsecase) *PeopleHandler {
	return &PeopleHandler{people: people}
}

func (h *PeopleHandler) Register(r gin.IRoutes) {
	r.GET("/people/search", h.Search)
}

// Search looks up recipients among contacts and known senders
// GET /api/people/search?q=...
func (h *PeopleHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
		return
	}

	contacts, err := h.people.Search(c.Request.Context(), c.GetString("accountID"), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "contacts": contacts})
}
