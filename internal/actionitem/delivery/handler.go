package delivery

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/usemox/mox/internal/actionitem/domain"
	"github.com/usemox/mox/internal/actionitem/usecase"
)

// ActionItemHandler serves /api/action-items
type ActionItemHandler struct {
	usecase usecase.ActionItemUsecase
}

func NewActionItemHandler(u usecase.ActionItemUsecase) *ActionItemHandler {
	return &ActionItemHandler{usecase: u}
}

func (h *ActionItemHandler) Register(r gin.IRoutes) {
	r.GET("/action-items", h.List)
	r.GET("/action-items/:id", h.Get)
	r.PATCH("/action-items/:id", h.Update)
	r.DELETE("/action-items/:id", h.Delete)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrActionItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Action item not found"})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// List returns action items of the account
// GET /api/action-items?completed=false&email_id=...&limit=50&offset=0
func (h *ActionItemHandler) List(c *gin.Context) {
	accountID := c.GetString("accountID")

	if emailID := c.Query("email_id"); emailID != "" {
		items, err := h.usecase.ListByEmail(c.Request.Context(), accountID, emailID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"action_items": items, "total": len(items)})
		return
	}

	var completed *bool
	if v, err := strconv.ParseBool(c.Query("completed")); err == nil {
		completed = &v
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, total, err := h.usecase.List(c.Request.Context(), accountID, completed, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"action_items": items, "total": total})
}

// GET /api/action-items/:id
func (h *ActionItemHandler) Get(c *gin.Context) {
	item, err := h.usecase.Get(c.Request.Context(), c.GetString("accountID"), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// PATCH /api/action-items/:id
func (h *ActionItemHandler) Update(c *gin.Context) {
	var in usecase.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := h.usecase.Update(c.Request.Context(), c.GetString("accountID"), c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// DELETE /api/action-items/:id
func (h *ActionItemHandler) Delete(c *gin.Context) {
	if err := h.usecase.Delete(c.Request.Context(), c.GetString("accountID"), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
