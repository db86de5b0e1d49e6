package delivery

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/usemox/mox/internal/email/domain"
	emaildto "github.com/usemox/mox/internal/email/dto"
	"github.com/usemox/mox/internal/email/usecase"
)

const maxAttachmentSize = 25 << 20

type EmailHandler struct {
	mailbox usecase.MailboxUsecase
}

func NewEmailHandler(mailbox usecase.MailboxUsecase) *EmailHandler {
	return &EmailHandler{mailbox: mailbox}
}

func (h *EmailHandler) Register(r gin.IRoutes) {
	r.GET("/emails", h.List)
	r.GET("/emails/unread-count", h.UnreadCount)
	r.GET("/emails/:id", h.Get)
	r.GET("/emails/:id/insights", h.Insights)
	r.GET("/emails/:id/attachments/:partId", h.Attachment)
	r.POST("/emails/read", h.MarkAsRead)
	r.POST("/emails/labels", h.AddLabels)
	r.DELETE("/emails/labels", h.RemoveLabels)
	r.POST("/emails/send", h.Send)
	r.GET("/threads/:id", h.Thread)
	r.POST("/threads/archive", h.Archive)
	r.GET("/attachments/cid/:cid", h.AttachmentByContentID)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrEmailNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Email not found"})
	case errors.Is(err, domain.ErrAttachmentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Attachment not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// List returns a page of a folder
// GET /api/emails?folder=INBOX&limit=20&offset=0
func (h *EmailHandler) List(c *gin.Context) {
	folder, ok := domain.ParseFolder(strings.ToUpper(c.DefaultQuery("folder", string(domain.FolderInbox))))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown folder"})
		return
	}

	limit := 20
	offset := 0
	if parsed, err := strconv.Atoi(c.Query("limit")); err == nil && parsed > 0 {
		limit = min(parsed, 100)
	}
	if parsed, err := strconv.Atoi(c.Query("offset")); err == nil && parsed >= 0 {
		offset = parsed
	}

	emails, total, err := h.mailbox.ListEmails(c.Request.Context(), c.GetString("accountID"), folder, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, emaildto.EmailsResponse{
		Emails: emails,
		Folder: folder,
		Limit:  limit,
		Offset: offset,
		Total:  total,
	})
}

// GET /api/emails/unread-count
func (h *EmailHandler) UnreadCount(c *gin.Context) {
	ctx := c.Request.Context()
	accountID := c.GetString("accountID")
	unread, err := h.mailbox.UnreadCount(ctx, accountID)
	if err != nil {
		writeError(c, err)
		return
	}
	total, err := h.mailbox.Count(ctx, accountID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": unread, "total": total})
}

// GET /api/emails/:id
func (h *EmailHandler) Get(c *gin.Context) {
	email, err := h.mailbox.GetEmail(c.Request.Context(), c.GetString("accountID"), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, email)
}

// GET /api/emails/:id/insights
func (h *EmailHandler) Insights(c *gin.Context) {
	results, err := h.mailbox.Insights(c.Request.Context(), c.GetString("accountID"), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"insights": results})
}

// GET /api/threads/:id
func (h *EmailHandler) Thread(c *gin.Context) {
	thread, err := h.mailbox.GetThread(c.Request.Context(), c.GetString("accountID"), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, emaildto.ThreadResponse{ThreadID: c.Param("id"), Emails: thread})
}

// POST /api/emails/read
func (h *EmailHandler) MarkAsRead(c *gin.Context) {
	var req emaildto.IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.mailbox.MarkAsRead(c.Request.Context(), c.GetString("accountID"), req.IDs); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "emails marked as read"})
}

// POST /api/threads/archive
func (h *EmailHandler) Archive(c *gin.Context) {
	var req emaildto.IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.mailbox.ArchiveThreads(c.Request.Context(), c.GetString("accountID"), req.IDs); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "threads archived"})
}

// POST /api/emails/labels
func (h *EmailHandler) AddLabels(c *gin.Context) {
	h.modifyLabels(c, true)
}

// DELETE /api/emails/labels
func (h *EmailHandler) RemoveLabels(c *gin.Context) {
	h.modifyLabels(c, false)
}

func (h *EmailHandler) modifyLabels(c *gin.Context, add bool) {
	var req emaildto.LabelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var toAdd, toRemove []string
	if add {
		toAdd = req.Labels
	} else {
		toRemove = req.Labels
	}
	if err := h.mailbox.ModifyLabels(c.Request.Context(), c.GetString("accountID"), req.IDs, toAdd, toRemove); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "labels updated"})
}

// GET /api/emails/:id/attachments/:partId
func (h *EmailHandler) Attachment(c *gin.Context) {
	att, err := h.mailbox.GetAttachment(c.Request.Context(), c.GetString("accountID"), c.Param("id"), c.Param("partId"))
	if err != nil {
		writeError(c, err)
		return
	}
	serveAttachment(c, att)
}

// GET /api/attachments/cid/:cid
func (h *EmailHandler) AttachmentByContentID(c *gin.Context) {
	att, err := h.mailbox.GetAttachmentByContentID(c.Request.Context(), c.GetString("accountID"), c.Param("cid"))
	if err != nil {
		writeError(c, err)
		return
	}
	serveAttachment(c, att)
}

func serveAttachment(c *gin.Context, att *domain.Attachment) {
	mimeType := att.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if att.Filename != "" {
		c.Header("Content-Disposition", "inline; filename=\""+strings.ReplaceAll(att.Filename, "\"", "")+"\"")
	}
	c.Data(http.StatusOK, mimeType, att.Data)
}

// Send composes and sends a message from a multipart form
// POST /api/emails/send
func (h *EmailHandler) Send(c *gin.Context) {
	var req emaildto.SendEmailRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out := &domain.OutgoingEmail{
		To:         splitAddresses(req.To),
		Cc:         splitAddresses(req.Cc),
		Bcc:        splitAddresses(req.Bcc),
		Subject:    req.Subject,
		HTML:       req.HTML,
		Plain:      req.Body,
		InReplyTo:  req.InReplyTo,
		References: req.References,
		ThreadID:   req.ThreadID,
	}
	if len(out.To) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one recipient is required"})
		return
	}

	for _, fh := range req.Files {
		if fh.Size > maxAttachmentSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "attachment too large: " + fh.Filename})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		out.Attachments = append(out.Attachments, domain.OutgoingAttachment{
			Filename: fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Data:     data,
		})
	}

	sent, err := h.mailbox.SendEmail(c.Request.Context(), c.GetString("accountID"), out)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sent)
}

func splitAddresses(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
