package analyses

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/stillwater-app/stillwater/internal/domain/journal"
)

// truncFloor is the smallest size an entry section is cut down to before the
// budget falls back to dropping whole sections.
const truncFloor = 280

const truncMarker = "\n[entry truncated]"

// BuildCorpus renders the unanalyzed drops and their transcripts into a single
// bounded text block for the model prompt. Drops are expected oldest-first;
// when the rendered text exceeds budget, older entries are truncated (and, as
// a last resort, dropped) before newer ones are touched.
func BuildCorpus(drops []*journal.DropConversation, budget int) string {
	if len(drops) == 0 {
		return ""
	}

	sections := make([]string, len(drops))
	total := 0
	for i, d := range drops {
		sections[i] = renderDrop(i+1, d)
		total += len(sections[i])
	}
	// account for the blank line between sections
	total += 2 * (len(sections) - 1)

	// Truncate oldest-first until the corpus fits.
	for i := 0; i < len(sections) && total > budget; i++ {
		if len(sections[i]) <= truncFloor {
			continue
		}
		keep := len(sections[i]) - (total - budget) - len(truncMarker)
		if keep < truncFloor {
			keep = truncFloor
		}
		trimmed := cutAtRune(sections[i], keep) + truncMarker
		total -= len(sections[i]) - len(trimmed)
		sections[i] = trimmed
	}

	// Still over budget: drop the oldest sections entirely, but always keep
	// the most recent entry.
	start := 0
	for start < len(sections)-1 && total > budget {
		total -= len(sections[start]) + 2
		start++
	}

	return strings.Join(sections[start:], "\n\n")
}

// CountMessages sums transcript lengths across drops.
func CountMessages(drops []*journal.DropConversation) int {
	n := 0
	for _, d := range drops {
		n += len(d.Conversation)
	}
	return n
}

func renderDrop(n int, d *journal.DropConversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Entry %d (%s)\n", n, d.CreatedAt.Format("2006-01-02"))
	if d.QuestionText != "" {
		fmt.Fprintf(&b, "Prompt: %s\n", d.QuestionText)
	}
	b.WriteString(strings.TrimSpace(d.Text))
	if len(d.Conversation) > 0 {
		b.WriteString("\nConversation:\n")
		for i, m := range d.Conversation {
			speaker := "Coach"
			if m.FromUser {
				speaker = "User"
			}
			fmt.Fprintf(&b, "%s: %s", speaker, strings.TrimSpace(m.Text))
			if i < len(d.Conversation)-1 {
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}

// cutAtRune shortens s to at most n bytes without splitting a UTF-8 sequence.
func cutAtRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
