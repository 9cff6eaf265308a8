// Package tgui holds helpers for building Telegram HTML (ParseMode="HTML").
package tgui

import (
	"html"
	"strings"
)

// H is HTML that is safe to pass to Telegram. Values of type H are treated
// as already escaped.
type H string

func (h H) String() string { return string(h) }

// Ellipsis marks text cut by Truncate.
const Ellipsis = "..."

// Esc escapes untrusted text. Telegram only requires &, < and > to be escaped,
// html.EscapeString also covers quotes which keeps attributes safe.
func Esc(s string) H { return H(html.EscapeString(s)) }

// Raw marks a string as already-safe HTML. Use sparingly.
func Raw(s string) H { return H(s) }

func wrap(tag string, inner H) H { return H("<" + tag + ">" + inner.String() + "</" + tag + ">") }

func B(s string) H { return wrap("b", Esc(s)) }
func I(s string) H { return wrap("i", Esc(s)) }
func S(s string) H { return wrap("s", Esc(s)) }

// BH and IH wrap HTML that was escaped already.
func BH(h H) H { return wrap("b", h) }
func IH(h H) H { return wrap("i", h) }

// Link builds an anchor. Both the label and the URL are escaped.
func Link(text, url string) H {
	return H(`<a href="` + html.EscapeString(url) + `">` + html.EscapeString(text) + `</a>`)
}

// Truncate cuts s to at most budget runes and appends Ellipsis when it had
// to cut. budget <= 0 disables truncation.
func Truncate(s string, budget int) string {
	if budget <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == budget {
			return s[:i] + Ellipsis
		}
		n++
	}
	return s
}

// JoinH joins non-blank parts with sep.
func JoinH(sep string, parts ...H) H {
	ss := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p.String()) == "" {
			continue
		}
		ss = append(ss, p.String())
	}
	return H(strings.Join(ss, sep))
}
