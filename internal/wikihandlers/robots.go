package wikihandlers

import (
	"strings"

	"github.com/kensanata/gemini-wiki/gemini"
)

var disallowedPaths = []string{
	"raw/*", "html/*", "diff/*", "history/*",
	"do/changes*", "do/all/changes*", "do/rss", "do/atom", "do/all/atom",
	"do/new", "do/more/*", "do/match", "do/search",
}

// serveRobots serves the current space's page literally named "robots"
// verbatim if it exists (spec.md §6). Otherwise it concatenates, for
// every space declared for this host, that space's "robots" page or,
// where there is none, a synthesised policy.
func (s *Site) serveRobots(w gemini.ResponseWriter, r *gemini.Request) {
	if text, _, err := s.Store.ReadPage(r.Space, "robots"); err == nil {
		w.WriteHeader(gemini.StatusSuccess, "text/plain; charset=UTF-8")
		w.Write([]byte(text))
		return
	}

	var b strings.Builder
	for _, space := range spaceNamesForHost(s, r.Host) {
		if text, _, err := s.Store.ReadPage(space, "robots"); err == nil {
			b.WriteString(text)
			b.WriteString("\n")
			continue
		}
		writeSyntheticRobots(&b, space)
	}

	w.WriteHeader(gemini.StatusSuccess, "text/plain; charset=UTF-8")
	w.Write([]byte(b.String()))
}

func writeSyntheticRobots(b *strings.Builder, space string) {
	b.WriteString("User-agent: *\n")
	prefix := "/"
	if space != "" {
		prefix = "/" + space + "/"
	}
	for _, p := range disallowedPaths {
		b.WriteString("Disallow: " + prefix + p + "\n")
	}
	b.WriteString("Crawl-delay: 10\n")
}
