package gmail

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/usemox/mox/internal/email/domain"
)

func parseAddresses(list []string) ([]*mail.Address, error) {
	addrs := make([]*mail.Address, 0, len(list))
	for _, raw := range list {
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", raw, err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// composeMessage renders msg as an RFC 5322 message with an alternative
// text/html body and attachments.
func composeMessage(msg *domain.OutgoingEmail, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, err
	}

	fields := []struct {
		key  string
		list []string
	}{
		{"To", msg.To},
		{"Cc", msg.Cc},
		{"Bcc", msg.Bcc},
	}
	if msg.From != "" {
		fields = append(fields, struct {
			key  string
			list []string
		}{"From", []string{msg.From}})
	}
	for _, f := range fields {
		if len(f.list) == 0 {
			continue
		}
		addrs, err := parseAddresses(f.list)
		if err != nil {
			return nil, err
		}
		h.SetAddressList(f.key, addrs)
	}
	if msg.InReplyTo != "" {
		h.Set("In-Reply-To", msg.InReplyTo)
	}
	if msg.References != "" {
		h.Set("References", msg.References)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, err
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}
	if msg.Plain != "" {
		if err := writeInline(tw, "text/plain", msg.Plain); err != nil {
			return nil, err
		}
	}
	if msg.HTML != "" || msg.Plain == "" {
		if err := writeInline(tw, "text/html", msg.HTML); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	for _, att := range msg.Attachments {
		var ah mail.AttachmentHeader
		mimeType := att.MimeType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		ah.SetContentType(mimeType, nil)
		ah.SetFilename(att.Filename)
		w, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(att.Data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeInline(tw *mail.InlineWriter, contentType, body string) error {
	var th mail.InlineHeader
	th.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	w, err := tw.CreatePart(th)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, body); err != nil {
		return err
	}
	return w.Close()
}
