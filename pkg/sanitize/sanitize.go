// Package sanitize strips quoted replies and non-content markup from email
// HTML before it is shown, embedded or sent to an LLM.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const quoteSelector = ".gmail_quote_container, .gmail_quote, .x_gmail_quote, .x_gmail_quote_container"

var (
	whitespaceRegex = regexp.MustCompile(`[^\S\n]+`)
	newlineRegex    = regexp.MustCompile(`\n{3,}`)
	// zero-width and other invisible code points used as tracking padding
	invisibleRegex = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{034F}\x{061C}\x{180E}\x{2060}-\x{2064}]+`)
)

func parse(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	doc.Find("script, style").Remove()
	doc.Find(quoteSelector).Remove()
	return doc, nil
}

// HTML returns the cleaned document body markup. On a parse failure the
// input is returned unchanged.
func HTML(html string) string {
	if html == "" {
		return ""
	}
	doc, err := parse(html)
	if err != nil {
		return html
	}
	out, err := doc.Find("body").Html()
	if err != nil {
		return html
	}
	return strings.TrimSpace(out)
}

// Text converts HTML to plain text with one line per block element.
func Text(html string) string {
	if html == "" {
		return ""
	}
	doc, err := parse(html)
	if err != nil {
		return html
	}
	doc.Find("head, meta, link").Remove()
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	text := invisibleRegex.ReplaceAllString(doc.Text(), "")
	text = whitespaceRegex.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	clean := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			clean = append(clean, line)
		}
	}
	text = newlineRegex.ReplaceAllString(strings.Join(clean, "\n"), "\n\n")
	return strings.TrimSpace(text)
}

// EmailText is the text used for embeddings and LLM prompts: the subject,
// a blank line, then the cleaned body. Plain text is used when there is no
// HTML part. The result is empty when both parts are blank.
func EmailText(subject, html, plain string) string {
	body := Text(html)
	if body == "" {
		body = strings.TrimSpace(plain)
	}
	subject = strings.TrimSpace(subject)
	switch {
	case subject == "" && body == "":
		return ""
	case body == "":
		return subject
	case subject == "":
		return body
	}
	return subject + "\n\n" + body
}
