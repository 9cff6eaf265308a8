package tgui

import (
	"strings"
	"testing"
)

func TestTruncateBudget(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		in     string
		budget int
		want   string
	}{
		{name: "under", in: "short", budget: 10, want: "short"},
		{name: "exact", in: "12345", budget: 5, want: "12345"},
		{name: "over", in: "123456", budget: 5, want: "12345..."},
		{name: "runes", in: "привет мир", budget: 6, want: "привет..."},
		{name: "disabled", in: "anything", budget: 0, want: "anything"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Truncate(tt.in, tt.budget); got != tt.want {
				t.Fatalf("Truncate(%q, %d) = %q, want %q", tt.in, tt.budget, got, tt.want)
			}
		})
	}
}

func TestTruncateLongInput(t *testing.T) {
	t.Parallel()
	in := strings.Repeat("a", 401)
	got := Truncate(in, 400)
	if got != strings.Repeat("a", 400)+Ellipsis {
		t.Fatalf("unexpected truncation length %d", len(got))
	}
}

func TestEscapeAndLink(t *testing.T) {
	t.Parallel()
	if got := B("a<b>&c"); got != "<b>a&lt;b&gt;&amp;c</b>" {
		t.Fatalf("B = %q", got)
	}
	if got := Link("Open", `https://x/?a=1&b="2"`); got != `<a href="https://x/?a=1&amp;b=&#34;2&#34;">Open</a>` {
		t.Fatalf("Link = %q", got)
	}
	if got := JoinH("\n", "a", " ", "", "b"); got != "a\nb" {
		t.Fatalf("JoinH = %q", got)
	}
}
