package adapter

import "strings"

const textLimit = 4000

// splitText cuts s into chunks of at most limit runes. It prefers newline
// boundaries and, for HTML, never cuts inside a tag or between an open tag
// and its close.
func splitText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	html := strings.EqualFold(parseMode, "HTML")

	out := make([]string, 0, len(rs)/limit+1)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' && (!html || balanced(rs[start:i])) {
					end = i + 1
					break
				}
			}
			if html {
				end = safeHTMLCut(rs, start, end)
			}
		}

		if chunk := strings.TrimRight(string(rs[start:end]), "\n"); chunk != "" {
			out = append(out, chunk)
		}
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

// safeHTMLCut moves end back to the start of a dangling tag or element.
// It gives up and returns end when that would leave nothing in the chunk.
func safeHTMLCut(rs []rune, start, end int) int {
	depth := 0
	openAt := -1
	inTag := -1
	for i := start; i < end; i++ {
		switch rs[i] {
		case '<':
			inTag = i
		case '>':
			if inTag < 0 {
				continue
			}
			if rs[inTag+1] == '/' {
				depth--
			} else {
				if depth == 0 {
					openAt = inTag
				}
				depth++
			}
			inTag = -1
		}
	}
	cut := end
	if inTag >= 0 {
		cut = inTag
	}
	if depth > 0 && openAt >= 0 && openAt < cut {
		cut = openAt
	}
	if cut <= start {
		return end
	}
	return cut
}

func balanced(rs []rune) bool {
	depth := 0
	inTag := -1
	for i, r := range rs {
		switch r {
		case '<':
			inTag = i
		case '>':
			if inTag < 0 {
				continue
			}
			if rs[inTag+1] == '/' {
				depth--
			} else {
				depth++
			}
			inTag = -1
		}
	}
	return depth == 0 && inTag < 0
}
