package triage

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/linnemanlabs/bursar/internal/mail"
)

// classifyBodyLimit bounds per-message body text in the classification
// context. The classifier only needs enough signal to pick a route.
const classifyBodyLimit = 500

// Markers annotating the message to act on. Exactly one message per
// rendered thread carries a marker.
const (
	currentMarker = " <<< Current Message"
	respondMarker = " <<< RESPOND TO THIS"
)

// ClassificationContext renders a conversation thread into the terse text
// block used as classifier input. Messages must be ordered oldest to
// newest; currentID identifies the unread message being routed.
//
// Deterministic for identical input; no side effects.
func ClassificationContext(msgs []mail.ThreadMessage, currentID string) string {
	if len(msgs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("=== EMAIL THREAD (MULTIPLE MESSAGES) ===\n\n")
	for i, m := range msgs {
		writeThreadMessage(&b, i+1, m, currentID, currentMarker, classifyBodyLimit)
	}
	b.WriteString("=== END OF THREAD ===\n")
	return b.String()
}

// GenerationContext renders a conversation thread into the verbose text
// block used as drafting input. Bodies are unbounded so the drafter has
// full fidelity.
func GenerationContext(msgs []mail.ThreadMessage, currentID string) string {
	if len(msgs) == 0 {
		return ""
	}

	var b strings.Builder
	if len(msgs) == 1 {
		b.WriteString("=== EMAIL TO RESPOND TO ===\n\n")
	} else {
		fmt.Fprintf(&b, "=== EMAIL THREAD (%d messages, oldest to newest) ===\n\n", len(msgs))
	}
	for i, m := range msgs {
		writeThreadMessage(&b, i+1, m, currentID, respondMarker, 0)
	}
	b.WriteString("=== END OF THREAD ===\n")
	return b.String()
}

// SingleMessageContext renders one inbound message for classification when
// no thread exists (or the thread has a single message).
func SingleMessageContext(m mail.Message) string {
	var b strings.Builder
	b.WriteString("=== EMAIL TO CLASSIFY (SINGLE MESSAGE) ===\n")
	fmt.Fprintf(&b, "From: %s <%s>\n", m.Sender, m.SenderEmail)
	fmt.Fprintf(&b, "Date: %s\n", m.ReceivedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Subject: %s\n", m.Subject)
	fmt.Fprintf(&b, "Body: %s\n", m.Body)
	b.WriteString("=== END OF EMAIL ===\n")
	return b.String()
}

func writeThreadMessage(b *strings.Builder, n int, m mail.ThreadMessage, currentID, marker string, bodyLimit int) {
	mark := ""
	if m.ID == currentID {
		mark = marker
	}

	// Prefer the short preview; fall back to the full body.
	body := m.Preview
	if body == "" {
		body = m.Body
		if bodyLimit > 0 && len(body) > bodyLimit {
			body = body[:bodyLimit]
		}
	}

	subject := m.Subject
	if subject == "" {
		subject = "(No Subject)"
	}

	fmt.Fprintf(b, "--- Message %d%s ---\n", n, mark)
	fmt.Fprintf(b, "From: %s <%s>\n", m.SenderName, m.SenderEmail)
	fmt.Fprintf(b, "Date: %s\n", m.ReceivedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(b, "Subject: %s\n", subject)
	fmt.Fprintf(b, "Body: %s\n\n", body)
}

var (
	// citationRe matches knowledge-base citation spans like
	// 【4:0†Billing_FAQ.pdf】 emitted by the generation collaborator.
	citationRe = regexp.MustCompile(`【[^】]*†[^】]*】`)

	trailingSpaceRe = regexp.MustCompile(` +\n`)
	newlineRunRe    = regexp.MustCompile(`\n{3,}`)
)

// CleanResponse sanitizes raw drafter output into an email-ready string:
// citation markers removed, trailing per-line whitespace stripped, runs of
// three or more newlines collapsed to two, and the whole trimmed.
func CleanResponse(raw string) string {
	if raw == "" {
		return ""
	}
	s := citationRe.ReplaceAllString(raw, "")
	s = trailingSpaceRe.ReplaceAllString(s, "\n")
	s = newlineRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

var boldRe = regexp.MustCompile(`\*\*(.+?)\*\*`)

// AsHTML converts a plain-text response into simple HTML for outbound
// replies. Text that already looks like HTML passes through unchanged.
func AsHTML(body string) string {
	lower := strings.ToLower(body)
	if strings.Contains(lower, "<html") || strings.Contains(lower, "<p>") || strings.Contains(lower, "<br") {
		return body
	}

	escaped := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(body)

	lines := strings.Split(escaped, "\n")
	for i, line := range lines {
		line = boldRe.ReplaceAllString(line, "<strong>$1</strong>")
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "- "):
			line = "• " + trimmed[len("- "):]
		case strings.HasPrefix(trimmed, "• "):
			line = "• " + trimmed[len("• "):]
		}
		lines[i] = line
	}

	return fmt.Sprintf(
		"<div style='font-family: Calibri, Arial, sans-serif; font-size: 11pt;'>%s</div>",
		strings.Join(lines, "<br>"),
	)
}
