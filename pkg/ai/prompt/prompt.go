// Package prompt holds the prompt text and response cleanup shared by the
// LLM providers.
package prompt

import (
	"fmt"
	"strings"
)

// Summary asks for a short, decision-oriented summary of a thread.
func Summary(text string) string {
	return fmt.Sprintf(`You are a smart email assistant. Summarize the email thread below so the reader can decide quickly what to do.

RULES:
- Line 1: the main point in one short sentence.
- Line 2 (optional): "Action: ..." or "Deadline: ..." or "Note: ..." when there is one.
- Promotional mail: only write "Promotion from <company>".
- At most two lines. Never cut a sentence short.

EMAIL:
%s

SUMMARY:`, text)
}

const answerSystem = `You are a concise, helpful assistant that answers questions from the provided emails context.
1. Use line breaks and bullet points for readability.
2. Highlight key details (dates, times, names) but keep the content brief.
3. Answer only from the emails provided, do not make up an answer.
4. If the input is not a question, summarize the emails instead.`

// Answer builds a question-answering prompt over retrieved emails.
func Answer(question string, contexts []string) string {
	return fmt.Sprintf("%s\n\nQuestion: %s\nContext:\n%s\nAnswer:", answerSystem, question, strings.Join(contexts, "\n---\n"))
}

// Structured appends the expected JSON schema to a prompt for providers
// that do not accept a schema natively.
func Structured(system, userPrompt string, schema []byte) string {
	var b strings.Builder
	if system != "" {
		b.WriteString(system)
		b.WriteString("\n\n")
	}
	if len(schema) > 0 {
		b.WriteString("Respond ONLY with a JSON object matching this JSON schema:\n")
		b.Write(schema)
		b.WriteString("\n\n")
	}
	b.WriteString(userPrompt)
	return b.String()
}

// ExtractJSON strips markdown fences and surrounding prose from a model
// response and returns the outermost JSON object or array.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}

	objStart, arrStart := strings.Index(text, "{"), strings.Index(text, "[")
	closeCh := "}"
	start := objStart
	if objStart == -1 || (arrStart != -1 && arrStart < objStart) {
		closeCh = "]"
		start = arrStart
	}
	end := strings.LastIndex(text, closeCh)
	if start == -1 || end <= start {
		return text
	}
	return text[start : end+1]
}

// Request describes a structured extraction call. Schema is a JSON schema
// the response must satisfy.
type Request struct {
	Name   string
	System string
	Prompt string
	Schema []byte
}
