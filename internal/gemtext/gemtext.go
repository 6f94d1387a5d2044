// Package gemtext classifies gemtext lines and renders them either
// verbatim (Gemini transport already speaks gemtext) or as minimal
// HTML (spec.md §4.2). No parser-combinator or markdown library in the
// retrieval pack fits a six-rule, line-oriented grammar this small; the
// classifier is hand-rolled the way the teacher's fileserver package
// hand-rolls its own tiny directory-listing renderer (DESIGN.md).
package gemtext

import (
	"fmt"
	"html"
	"net/url"
	"path"
	"strings"
)

// LineKind identifies which of the six gemtext line classes a line belongs to.
type LineKind int

const (
	KindPreformattedToggle LineKind = iota
	KindPreformattedText
	KindLink
	KindHeading1
	KindHeading2
	KindHeading3
	KindListItem
	KindBlockquote
	KindParagraph
)

// Line is one classified line of gemtext.
type Line struct {
	Kind LineKind
	Text string // raw text payload (label for links, content otherwise)
	URL  string // link target, only set for KindLink
}

// Parse classifies every line of raw gemtext into Lines, applying the
// precedence spec.md §4.2 specifies: preformat toggle, then link, then
// heading, then list item, then blockquote, then paragraph — and
// short-circuiting everything but the toggle while inside a
// preformatted block.
func Parse(text string) []Line {
	lines := strings.Split(text, "\n")
	// A trailing empty element from a final "\n" is not a line of content.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	out := make([]Line, 0, len(lines))
	preformatted := false
	for _, raw := range lines {
		if raw == "```" {
			preformatted = !preformatted
			out = append(out, Line{Kind: KindPreformattedToggle, Text: raw})
			continue
		}

		if preformatted {
			out = append(out, Line{Kind: KindPreformattedText, Text: raw})
			continue
		}

		out = append(out, classify(raw))
	}
	return out
}

func classify(raw string) Line {
	if target, label, ok := parseLink(raw); ok {
		return Line{Kind: KindLink, URL: target, Text: label}
	}

	if strings.HasPrefix(raw, "### ") {
		return Line{Kind: KindHeading3, Text: raw[4:]}
	}
	if strings.HasPrefix(raw, "## ") {
		return Line{Kind: KindHeading2, Text: raw[3:]}
	}
	if strings.HasPrefix(raw, "# ") {
		return Line{Kind: KindHeading1, Text: raw[2:]}
	}

	if strings.HasPrefix(raw, "* ") {
		return Line{Kind: KindListItem, Text: raw[2:]}
	}

	if strings.HasPrefix(raw, "> ") {
		return Line{Kind: KindBlockquote, Text: raw[2:]}
	}

	return Line{Kind: KindParagraph, Text: raw}
}

// parseLink recognizes "=>" then one or more spaces/tabs, a URL, then
// optional whitespace and a label.
func parseLink(raw string) (target, label string, ok bool) {
	if !strings.HasPrefix(raw, "=>") {
		return "", "", false
	}
	rest := raw[2:]
	trimmed := strings.TrimLeft(rest, " \t")
	if trimmed == rest {
		// "=>" not followed by at least one space/tab is not a link line.
		return "", "", false
	}

	fields := strings.SplitN(trimmed, " ", 2)
	target = strings.TrimRight(fields[0], " \t")
	if len(fields) == 2 {
		label = strings.TrimSpace(fields[1])
	}
	if target == "" {
		return "", "", false
	}
	return target, label, true
}

// RenderGemini renders lines back to gemtext, each terminated by "\n".
// Link lines are rewritten as "=> URL label" with single spaces, so
// other whitespace in the input's link lines is not preserved.
func RenderGemini(lines []Line) string {
	var b strings.Builder
	for _, l := range lines {
		switch l.Kind {
		case KindLink:
			if l.Text != "" {
				fmt.Fprintf(&b, "=> %s %s\n", l.URL, l.Text)
			} else {
				fmt.Fprintf(&b, "=> %s\n", l.URL)
			}
		case KindHeading1:
			fmt.Fprintf(&b, "# %s\n", l.Text)
		case KindHeading2:
			fmt.Fprintf(&b, "## %s\n", l.Text)
		case KindHeading3:
			fmt.Fprintf(&b, "### %s\n", l.Text)
		case KindListItem:
			fmt.Fprintf(&b, "* %s\n", l.Text)
		case KindBlockquote:
			fmt.Fprintf(&b, "> %s\n", l.Text)
		default:
			fmt.Fprintf(&b, "%s\n", l.Text)
		}
	}
	return b.String()
}

// LinkRewriter rewrites a relative link target into an absolute path
// under the current space, e.g. "/page/<name>".
type LinkRewriter func(target string) string

// DefaultLinkRewriter resolves a relative gemtext link against the
// current space's page namespace.
func DefaultLinkRewriter(space string) LinkRewriter {
	return func(target string) string {
		if u, err := url.Parse(target); err == nil && (u.IsAbs() || u.Host != "") {
			return target
		}
		name := strings.TrimPrefix(target, "/")
		if space != "" {
			return path.Join("/", space, "page", name)
		}
		return path.Join("/page", name)
	}
}

// RenderHTML renders lines as a minimal HTML fragment: <pre> for
// preformatted blocks, <a href> for links (rewritten via rewrite),
// <h1..h3>, <ul><li>, <blockquote>, <p>. Output is escaped UTF-8.
func RenderHTML(lines []Line, rewrite LinkRewriter) string {
	var b strings.Builder
	inPre := false
	inList := false

	closeList := func() {
		if inList {
			b.WriteString("</ul>\n")
			inList = false
		}
	}

	for _, l := range lines {
		if l.Kind == KindPreformattedToggle {
			closeList()
			if !inPre {
				b.WriteString("<pre>\n")
			} else {
				b.WriteString("</pre>\n")
			}
			inPre = !inPre
			continue
		}

		if inPre {
			b.WriteString(html.EscapeString(l.Text))
			b.WriteString("\n")
			continue
		}

		if l.Kind != KindListItem {
			closeList()
		}

		switch l.Kind {
		case KindLink:
			href := l.URL
			if rewrite != nil {
				href = rewrite(l.URL)
			}
			label := l.Text
			if label == "" {
				label = l.URL
			}
			fmt.Fprintf(&b, `<p><a href="%s">%s</a></p>`+"\n", html.EscapeString(href), html.EscapeString(label))
		case KindHeading1:
			fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(l.Text))
		case KindHeading2:
			fmt.Fprintf(&b, "<h2>%s</h2>\n", html.EscapeString(l.Text))
		case KindHeading3:
			fmt.Fprintf(&b, "<h3>%s</h3>\n", html.EscapeString(l.Text))
		case KindListItem:
			if !inList {
				b.WriteString("<ul>\n")
				inList = true
			}
			fmt.Fprintf(&b, "<li>%s</li>\n", html.EscapeString(l.Text))
		case KindBlockquote:
			fmt.Fprintf(&b, "<blockquote>%s</blockquote>\n", html.EscapeString(l.Text))
		default:
			if l.Text == "" {
				continue
			}
			fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(l.Text))
		}
	}
	closeList()
	if inPre {
		b.WriteString("</pre>\n")
	}
	return b.String()
}
