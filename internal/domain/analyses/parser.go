package analyses

import (
	"fmt"
	"regexp"
	"strings"
)

// The model is asked for three labelled sections but drifts between markdown
// conventions. Parsing is header-keyword-driven: we locate every recognizable
// header, slice the text between them, and validate afterwards. Matches
// "Summary:", "**Summary:**", "**Summary**:", and "## Summary:" alike.
var headerRe = regexp.MustCompile(`(?im)^[ \t]*(?:#{1,3}[ \t]*)?\*{0,2}(summary|analysis|key insights|insights)\*{0,2}[ \t]*:\*{0,2}[ \t]*`)

var bulletRe = regexp.MustCompile(`^[•\-*][ \t]+`)

// ParseResponse extracts and validates the structured analysis from raw model
// text. Pure function of its input.
func ParseResponse(raw string) (*ParsedResponse, error) {
	matches := headerRe.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnparseableResponse, snippet(raw))
	}

	sections := map[string]string{}
	for i, m := range matches {
		name := strings.ToLower(raw[m[2]:m[3]])
		if name == "key insights" {
			name = "insights"
		}
		end := len(raw)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		// first header of a given name wins
		if _, ok := sections[name]; !ok {
			sections[name] = strings.TrimSpace(raw[m[1]:end])
		}
	}

	content := sections["analysis"]
	if content == "" {
		return nil, ErrMissingSection
	}

	summary := cleanLine(sections["summary"])
	if summary == "" {
		return nil, ErrMissingSummary
	}
	if words := len(strings.Fields(summary)); words > SummaryMaxWords {
		return nil, fmt.Errorf("%w: %d words (max %d)", ErrSummaryTooLong, words, SummaryMaxWords)
	}

	bullets := extractBullets(sections["insights"])
	if len(bullets) < MinBulletPoints || len(bullets) > MaxBulletPoints {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBulletCount, len(bullets))
	}

	return &ParsedResponse{
		Summary:      summary,
		Content:      content,
		BulletPoints: bullets,
	}, nil
}

func extractBullets(section string) []string {
	var out []string
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if !bulletRe.MatchString(line) {
			continue
		}
		text := cleanLine(bulletRe.ReplaceAllString(line, ""))
		if text != "" {
			out = append(out, text)
		}
	}
	return out
}

// cleanLine strips residual markdown emphasis and whitespace.
func cleanLine(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*")
	return strings.TrimSpace(s)
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
