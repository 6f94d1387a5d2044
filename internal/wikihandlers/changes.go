package wikihandlers

import (
	"fmt"
	"strings"

	"github.com/kensanata/gemini-wiki/gemini"
	"github.com/kensanata/gemini-wiki/internal/config"
	"github.com/kensanata/gemini-wiki/internal/store"
)

const changesPageSize = 100

func (s *Site) serveChanges(w gemini.ResponseWriter, r *gemini.Request, offset int) {
	entries, err := s.Store.ReadChanges(r.Space, changesPageSize, offset)
	if err != nil {
		w.WriteHeader(gemini.StatusTemporaryFailure, "changes unavailable")
		return
	}

	var b strings.Builder
	b.WriteString("# Changes\n")
	writeChangeEntries(&b, r.Space, entries)

	if len(entries) == changesPageSize {
		fmt.Fprintf(&b, "\n=> /do/more/%d More changes\n", offset+changesPageSize)
	}

	w.WriteHeader(gemini.StatusSuccess, gemini.MimeType)
	w.Write([]byte(b.String()))
}

// serveAllChanges aggregates the change log of every declared space for
// the current host into one view, supplementing spec.md §4.5's
// per-space /do/changes with a site-wide equivalent.
func (s *Site) serveAllChanges(w gemini.ResponseWriter, r *gemini.Request) {
	var b strings.Builder
	b.WriteString("# Changes across all spaces\n")

	for _, space := range spaceNamesForHost(s, r.Host) {
		entries, err := s.Store.ReadChanges(space, changesPageSize, 0)
		if err != nil || len(entries) == 0 {
			continue
		}
		label := space
		if label == "" {
			label = "(root)"
		}
		fmt.Fprintf(&b, "\n## %s\n", label)
		writeChangeEntries(&b, space, entries)
	}

	w.WriteHeader(gemini.StatusSuccess, gemini.MimeType)
	w.Write([]byte(b.String()))
}

func writeChangeEntries(b *strings.Builder, space string, entries []store.ChangeEntry) {
	for _, e := range entries {
		prefix := "/page/"
		if e.Revision == 0 {
			prefix = "/file/"
		}
		spacePrefix := ""
		if space != "" {
			spacePrefix = "/" + space
		}
		fmt.Fprintf(b, "=> %s%s%s %s %s %s\n",
			spacePrefix, prefix, e.Name,
			e.Timestamp.UTC().Format("2006-01-02 15:04"),
			e.Name, e.Code)
	}
}

func spaceNamesForHost(s *Site, host string) []string {
	names := config.SpacesForHost(s.Cfg.Spaces, host)
	hasRoot := false
	for _, n := range names {
		if n == "" {
			hasRoot = true
		}
	}
	if !hasRoot {
		names = append([]string{""}, names...)
	}
	return names
}
