package dto

import (
	"mime/multipart"

	emaildomain "github.com/usemox/mox/internal/email/domain"
)

type EmailsResponse struct {
	Emails []*emaildomain.Email `json:"emails"`
	Folder emaildomain.Folder   `json:"folder"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
	Total  int64                `json:"total"`
}

type ThreadResponse struct {
	ThreadID string               `json:"thread_id"`
	Emails   []*emaildomain.Email `json:"emails"`
}

// SendEmailRequest is a multipart form. Address fields are comma separated.
type SendEmailRequest struct {
	To         string                  `form:"to" binding:"required"`
	Cc         string                  `form:"cc"`
	Bcc        string                  `form:"bcc"`
	Subject    string                  `form:"subject"`
	HTML       string                  `form:"html"`
	Body       string                  `form:"body"`
	InReplyTo  string                  `form:"in_reply_to"`
	References string                  `form:"references"`
	ThreadID   string                  `form:"thread_id"`
	Files      []*multipart.FileHeader `form:"files"`
}

type IDsRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

type LabelsRequest struct {
	IDs    []string `json:"ids" binding:"required,min=1"`
	Labels []string `json:"labels" binding:"required,min=1"`
}

type SummaryRequest struct {
	ThreadIDs []string `json:"thread_ids" binding:"required"`
}
