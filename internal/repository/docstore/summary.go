package docstore

import (
	"strings"
	"unicode"
)

const ellipsis = " ..."

// summarize returns up to max runes of content, starting near the first
// occurrence of a query term and cut on word boundaries.
func summarize(content, query string, max int) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}

	start := 0
	lower := strings.ToLower(content)
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if pos := strings.Index(lower, term); pos >= 0 {
			start = len([]rune(lower[:pos]))
			break
		}
	}
	// Leave some context before the match.
	start = max0(start - max/4)
	for start > 0 && !unicode.IsSpace(runes[start-1]) {
		start--
	}

	end := min(start+max, len(runes))
	if end < len(runes) {
		for end > start && !unicode.IsSpace(runes[end]) {
			end--
		}
		if end == start {
			end = min(start+max, len(runes))
		}
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString("... ")
	}
	b.WriteString(strings.TrimSpace(string(runes[start:end])))
	if end < len(runes) {
		b.WriteString(ellipsis)
	}
	return b.String()
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
