package sanitize

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func TestTextRemovesQuotesAndScripts(t *testing.T) {
	html := `<html><head><style>p{color:red}</style></head><body>
<p>Hello   there</p>
<script>alert(1)</script>
<div class="gmail_quote">On Monday someone wrote: old stuff</div>
<p>Thanks&#8203;!</p>
</body></html>`

	got := Text(html)
	be.Equal(t, got, "Hello there\nThanks!")
}

func TestHTMLKeepsMarkupWithoutQuotes(t *testing.T) {
	got := HTML(`<body><p>keep</p><blockquote class="x_gmail_quote">drop</blockquote></body>`)
	be.Equal(t, got, "<p>keep</p>")
}

func TestEmptyInput(t *testing.T) {
	be.Equal(t, Text(""), "")
	be.Equal(t, HTML(""), "")
}

func TestEmailText(t *testing.T) {
	be.Equal(t, EmailText("Subject", "<p>Body</p>", ""), "Subject\n\nBody")
	be.Equal(t, EmailText("Subject", "", "plain body "), "Subject\n\nplain body")
	be.Equal(t, EmailText("", "", "  "), "")
	be.Equal(t, EmailText("Only subject", "", ""), "Only subject")
	be.True(t, !strings.Contains(EmailText("s", `<div class="gmail_quote">q</div>`, ""), "q"))
}
