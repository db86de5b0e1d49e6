package delivery

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/usemox/mox/internal/account/domain"
	"github.com/usemox/mox/internal/account/usecase"
)

type AccountHandler struct {
	usecase usecase.AccountUsecase
}

func NewAccountHandler(u usecase.AccountUsecase) *AccountHandler {
	return &AccountHandler{usecase: u}
}

// RegisterPublic mounts the unauthenticated routes.
func (h *AccountHandler) RegisterPublic(r gin.IRoutes) {
	r.POST("/accounts", h.Create)
}

func (h *AccountHandler) Register(r gin.IRoutes) {
	r.GET("/accounts/me", h.Me)
	r.DELETE("/accounts/me", h.Remove)
	r.POST("/devices", h.AddDevice)
	r.DELETE("/devices", h.RemoveDevice)
}

// POST /api/accounts
func (h *AccountHandler) Create(c *gin.Context) {
	var req usecase.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.usecase.Register(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, session)
}

// GET /api/accounts/me
func (h *AccountHandler) Me(c *gin.Context) {
	acc, err := h.usecase.Get(c.Request.Context(), c.GetString("accountID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

// DELETE /api/accounts/me
func (h *AccountHandler) Remove(c *gin.Context) {
	if err := h.usecase.Remove(c.Request.Context(), c.GetString("accountID")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account removed"})
}

type deviceRequest struct {
	Token      string `json:"token" binding:"required"`
	DeviceInfo string `json:"device_info"`
}

// POST /api/devices
func (h *AccountHandler) AddDevice(c *gin.Context) {
	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.usecase.RegisterDevice(c.Request.Context(), c.GetString("accountID"), req.Token, req.DeviceInfo); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Device registered"})
}

// DELETE /api/devices
func (h *AccountHandler) RemoveDevice(c *gin.Context) {
	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.usecase.UnregisterDevice(c.Request.Context(), req.Token); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Device removed"})
}

func writeError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrAccountNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
