package wikihandlers

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// renderDiff produces the classic "< removed / > added / --- separator"
// line diff spec.md §4.8 asks for, built on go-difflib's
// longest-common-subsequence SequenceMatcher rather than its bundled
// unified-diff formatter, since the wire format here isn't unified diff.
func renderDiff(oldText, newText string) string {
	a := difflib.SplitLines(oldText)
	b := difflib.SplitLines(newText)

	matcher := difflib.NewMatcher(a, b)
	var out strings.Builder

	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'e':
			continue
		case 'd':
			writeLines(&out, "< ", a[op.I1:op.I2])
		case 'i':
			writeLines(&out, "> ", b[op.J1:op.J2])
		case 'r':
			writeLines(&out, "< ", a[op.I1:op.I2])
			out.WriteString("---\n")
			writeLines(&out, "> ", b[op.J1:op.J2])
		}
	}

	return out.String()
}

func writeLines(out *strings.Builder, prefix string, lines []string) {
	for _, l := range lines {
		fmt.Fprintf(out, "%s%s", prefix, strings.TrimSuffix(l, "\n"))
		out.WriteString("\n")
	}
}
