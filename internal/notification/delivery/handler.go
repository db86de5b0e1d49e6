package delivery

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/usemox/mox/internal/notification"
)

// PayloadHandler applies one decoded change notification.
type PayloadHandler interface {
	HandlePayload(ctx context.Context, data []byte) error
}

// PushHandler receives Pub/Sub push deliveries, an alternative to the
// pull subscription of notification.Listener.
type PushHandler struct {
	listener PayloadHandler
	token    string
	logger   *slog.Logger
}

// NewPushHandler builds the handler. A non-empty token must be sent as
// ?token= on every delivery.
func NewPushHandler(listener PayloadHandler, token string, logger *slog.Logger) *PushHandler {
	return &PushHandler{listener: listener, token: token, logger: logger.With("component", "push_endpoint")}
}

func (h *PushHandler) Register(r gin.IRoutes) {
	r.POST("/push", h.Receive)
}

type pushEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// Receive acknowledges every well-formed delivery, including ones whose
// payload is rejected, so Pub/Sub does not redeliver them.
// POST /api/push
func (h *PushHandler) Receive(c *gin.Context) {
	if h.token != "" && subtle.ConstantTimeCompare([]byte(c.Query("token")), []byte(h.token)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid push token"})
		return
	}

	var env pushEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message data is not base64"})
		return
	}

	if err := h.listener.HandlePayload(c.Request.Context(), data); err != nil {
		level := slog.LevelError
		if errors.Is(err, notification.ErrInvalidPayload) {
			level = slog.LevelWarn
		}
		h.logger.Log(c.Request.Context(), level, "Failed to apply push notification", "message_id", env.Message.MessageID, "error", err)
	}
	c.Status(http.StatusNoContent)
}
