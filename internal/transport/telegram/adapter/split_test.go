package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitTextShortPassesThrough(t *testing.T) {
	t.Parallel()
	got := splitText("hello", 10, "HTML")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	line := strings.Repeat("x", 30)
	s := strings.Join([]string{line, line, line, line}, "\n")
	got := splitText(s, 70, "")
	for i, c := range got {
		if utf8.RuneCountInString(c) > 70 {
			t.Fatalf("chunk %d too long: %d", i, utf8.RuneCountInString(c))
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk %d has edge newline: %q", i, c)
		}
	}
	if strings.Join(got, "\n") != s {
		t.Fatalf("content changed: %q", got)
	}
}

func TestSplitTextKeepsHTMLElementsWhole(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("a", 50) + "<b>" + strings.Repeat("b", 20) + "</b>"
	got := splitText(s, 60, "HTML")
	if len(got) != 2 {
		t.Fatalf("got %d chunks: %q", len(got), got)
	}
	if got[0] != strings.Repeat("a", 50) {
		t.Fatalf("first chunk = %q", got[0])
	}
	if got[1] != "<b>"+strings.Repeat("b", 20)+"</b>" {
		t.Fatalf("second chunk = %q", got[1])
	}
}

func TestSplitTextCountsRunes(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("я", 25)
	got := splitText(s, 10, "")
	if len(got) != 3 || got[2] != strings.Repeat("я", 5) {
		t.Fatalf("got %q", got)
	}
}
