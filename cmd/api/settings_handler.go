package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/usemox/mox/pkg/ai"
)

// SettingsHandler exposes the AI settings that can change at runtime.
type SettingsHandler struct {
	settings *ai.Settings
	ollama   *ai.OllamaService
}

func NewSettingsHandler(settings *ai.Settings, ollama *ai.OllamaService) *SettingsHandler {
	return &SettingsHandler{settings: settings, ollama: ollama}
}

func (h *SettingsHandler) Register(r gin.IRoutes) {
	r.GET("/settings/ai", h.Get)
	r.PUT("/settings/ai", h.Update)
	r.POST("/settings/ai/test", h.TestOllama)
}

// GET /api/settings/ai
func (h *SettingsHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.Snapshot())
}

// Update applies the non-empty fields; provider must be gemini, ollama or auto
// PUT /api/settings/ai
func (h *SettingsHandler) Update(c *gin.Context) {
	var req ai.SettingsSnapshot
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch req.Provider {
	case "", ai.ProviderGemini, ai.ProviderOllama, ai.ProviderAuto:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider must be gemini, ollama or auto"})
		return
	}
	c.JSON(http.StatusOK, h.settings.Update(req))
}

// TestOllama checks that an Ollama server answers, the configured one by
// default
// POST /api/settings/ai/test
func (h *SettingsHandler) TestOllama(c *gin.Context) {
	var req struct {
		OllamaBaseURL string `json:"ollama_base_url"`
	}
	_ = c.ShouldBindJSON(&req)

	target := h.ollama
	baseURL := h.settings.OllamaBaseURL()
	if req.OllamaBaseURL != "" {
		target = ai.NewOllamaService(req.OllamaBaseURL, "", "")
		baseURL = req.OllamaBaseURL
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := target.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"connected": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": true, "ollama_base_url": baseURL})
}
