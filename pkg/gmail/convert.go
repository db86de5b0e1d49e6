package gmail

import (
	"encoding/base64"
	"net/mail"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/usemox/mox/internal/email/domain"
)

func convertMessage(msg *gmail.Message) *domain.Email {
	if msg == nil || msg.Id == "" {
		return nil
	}

	var headers []*gmail.MessagePartHeader
	if msg.Payload != nil {
		headers = msg.Payload.Headers
	}

	threadID := msg.ThreadId
	if threadID == "" {
		threadID = msg.Id
	}

	labels := domain.StringArray(msg.LabelIds)
	if labels == nil {
		labels = domain.StringArray{}
	}

	email := &domain.Email{
		ID:        msg.Id,
		ThreadID:  threadID,
		From:      getHeader(headers, "From"),
		To:        getHeader(headers, "To"),
		Cc:        getHeader(headers, "Cc"),
		Subject:   getHeader(headers, "Subject"),
		Snippet:   strings.TrimSpace(msg.Snippet),
		Date:      messageDate(msg, headers),
		Unread:    labels.Contains("UNREAD"),
		Folder:    domain.FolderFromLabels(msg.LabelIds),
		Labels:    labels,
		HistoryID: msg.HistoryId,
	}

	if msg.Payload != nil {
		html, plain := getBodies(msg.Payload)
		email.Body = &domain.EmailBody{EmailID: msg.Id, HTML: html, Plain: plain}
		email.Attachments = getAttachments(msg.Id, msg.Payload)
	}
	return email
}

func messageDate(msg *gmail.Message, headers []*gmail.MessagePartHeader) time.Time {
	if msg.InternalDate > 0 {
		return time.UnixMilli(msg.InternalDate).UTC()
	}
	if d, err := mail.ParseDate(getHeader(headers, "Date")); err == nil {
		return d.UTC()
	}
	return time.Time{}
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

func decodeData(data string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
}

// getBodies walks the MIME tree and returns the first text/html and
// text/plain parts that are not attachments.
func getBodies(payload *gmail.MessagePart) (html, plain string) {
	var walk func(part *gmail.MessagePart)
	walk = func(part *gmail.MessagePart) {
		if part.Filename == "" && part.Body != nil && part.Body.Data != "" {
			data, err := decodeData(part.Body.Data)
			if err == nil {
				switch {
				case strings.HasPrefix(part.MimeType, "text/html") && html == "":
					html = string(data)
				case strings.HasPrefix(part.MimeType, "text/plain") && plain == "":
					plain = string(data)
				}
			}
		}
		for _, child := range part.Parts {
			walk(child)
		}
	}
	walk(payload)
	return html, plain
}

// getAttachments collects parts with a filename or a Content-ID. Data is
// left empty and fetched on demand.
func getAttachments(messageID string, payload *gmail.MessagePart) []domain.Attachment {
	var attachments []domain.Attachment

	var walk func(part *gmail.MessagePart)
	walk = func(part *gmail.MessagePart) {
		contentID := strings.Trim(getHeader(part.Headers, "Content-ID"), "<> ")
		if part.Body != nil && part.Body.AttachmentId != "" && (part.Filename != "" || contentID != "") {
			attachments = append(attachments, domain.Attachment{
				EmailID:      messageID,
				PartID:       part.PartId,
				AttachmentID: part.Body.AttachmentId,
				MimeType:     part.MimeType,
				Filename:     part.Filename,
				ContentID:    contentID,
				Size:         part.Body.Size,
			})
		}
		for _, child := range part.Parts {
			walk(child)
		}
	}
	walk(payload)
	return attachments
}
