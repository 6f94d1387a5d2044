package wikihandlers

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/kensanata/gemini-wiki/gemini"
	"github.com/kensanata/gemini-wiki/internal/store"
)

const feedEntryLimit = 50

// guid builds the stable tag: URI spec.md §4.8 specifies for feed entries.
func guid(host string, t time.Time, space, name string, rev int) string {
	return fmt.Sprintf("tag:%s,%s:%s/%s?rev=%d", host, t.UTC().Format("2006-01-02"), space, name, rev)
}

func (s *Site) serveRSS(w gemini.ResponseWriter, r *gemini.Request) {
	entries, err := s.Store.ReadChanges(r.Space, feedEntryLimit, 0)
	if err != nil {
		w.WriteHeader(gemini.StatusTemporaryFailure, "feed unavailable")
		return
	}

	body := renderRSS(r.Host, r.Space, entries)
	w.WriteHeader(gemini.StatusSuccess, "application/rss+xml; charset=UTF-8")
	w.Write([]byte(body))
}

func (s *Site) serveAtom(w gemini.ResponseWriter, r *gemini.Request) {
	entries, err := s.Store.ReadChanges(r.Space, feedEntryLimit, 0)
	if err != nil {
		w.WriteHeader(gemini.StatusTemporaryFailure, "feed unavailable")
		return
	}

	body := renderAtom(r.Host, r.Space, entries)
	w.WriteHeader(gemini.StatusSuccess, "application/atom+xml; charset=UTF-8")
	w.Write([]byte(body))
}

// serveAllAtom aggregates every declared space's change log into a
// single Atom feed (spec.md §4.5 lists /do/all/atom explicitly).
func (s *Site) serveAllAtom(w gemini.ResponseWriter, r *gemini.Request) {
	var all []store.ChangeEntry
	spaceOf := make(map[int]string)

	for _, space := range spaceNamesForHost(s, r.Host) {
		entries, err := s.Store.ReadChanges(space, feedEntryLimit, 0)
		if err != nil {
			continue
		}
		for _, e := range entries {
			spaceOf[len(all)] = space
			all = append(all, e)
		}
	}

	body := renderAtomMulti(r.Host, all, spaceOf)
	w.WriteHeader(gemini.StatusSuccess, "application/atom+xml; charset=UTF-8")
	w.Write([]byte(body))
}

func renderRSS(host, space string, entries []store.ChangeEntry) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString("<rss version=\"2.0\"><channel>\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(feedTitle(host, space)))
	fmt.Fprintf(&b, "<link>gemini://%s/%s</link>\n", host, space)
	b.WriteString("<description>Recent changes</description>\n")

	for _, e := range entries {
		fmt.Fprintf(&b, "<item><title>%s</title><guid isPermaLink=\"false\">%s</guid><pubDate>%s</pubDate></item>\n",
			html.EscapeString(e.Name),
			html.EscapeString(guid(host, e.Timestamp, space, e.Name, e.Revision)),
			e.Timestamp.UTC().Format(time.RFC1123Z))
	}

	b.WriteString("</channel></rss>\n")
	return b.String()
}

func renderAtom(host, space string, entries []store.ChangeEntry) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString("<feed xmlns=\"http://www.w3.org/2005/Atom\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(feedTitle(host, space)))
	fmt.Fprintf(&b, "<id>tag:%s,%s:%s</id>\n", host, time.Now().UTC().Format("2006-01-02"), space)

	for _, e := range entries {
		fmt.Fprintf(&b, "<entry><title>%s</title><id>%s</id><updated>%s</updated></entry>\n",
			html.EscapeString(e.Name),
			html.EscapeString(guid(host, e.Timestamp, space, e.Name, e.Revision)),
			e.Timestamp.UTC().Format(time.RFC3339))
	}

	b.WriteString("</feed>\n")
	return b.String()
}

func renderAtomMulti(host string, entries []store.ChangeEntry, spaceOf map[int]string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString("<feed xmlns=\"http://www.w3.org/2005/Atom\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString("All changes on "+host))
	fmt.Fprintf(&b, "<id>tag:%s,%s:all</id>\n", host, time.Now().UTC().Format("2006-01-02"))

	for i, e := range entries {
		space := spaceOf[i]
		fmt.Fprintf(&b, "<entry><title>%s/%s</title><id>%s</id><updated>%s</updated></entry>\n",
			html.EscapeString(space), html.EscapeString(e.Name),
			html.EscapeString(guid(host, e.Timestamp, space, e.Name, e.Revision)),
			e.Timestamp.UTC().Format(time.RFC3339))
	}

	b.WriteString("</feed>\n")
	return b.String()
}

func feedTitle(host, space string) string {
	if space == "" {
		return host
	}
	return host + "/" + space
}
