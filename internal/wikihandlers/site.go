// Package wikihandlers implements C5 (Gemini routes), C7 (the
// read-only HTTP mirror) and C8 (change-log aggregation, diff, feeds)
// from spec.md §4.5-§4.8. Exact-path routes (menu, index, search forms,
// changes, feeds, robots) are registered on a gemini.Mux; routes that
// carry a trailing page name or revision segment can't be expressed as
// a Mux entry, so they fall through the Mux's NotFound into a small
// hand-written prefix switch instead. The gemtext rendering and footer
// composition underneath follow the teacher's fileserver directory
// listing in spirit (build a buffer, write status once).
package wikihandlers

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kensanata/gemini-wiki/gemini"
	"github.com/kensanata/gemini-wiki/internal/config"
	"github.com/kensanata/gemini-wiki/internal/ext"
	"github.com/kensanata/gemini-wiki/internal/store"
)

// Site bundles everything a route needs to read and render content
// for one running server (all its spaces share one Store and Config).
type Site struct {
	Store *store.Store
	Cfg   *config.Config
	Log   *logrus.Logger

	Menu   ext.MenuContributor
	Footer ext.FooterContributor

	// Resolve maps a host/path pair to (host, space, path, hostKnown),
	// matching the signature dispatch.Server.Resolve expects. The HTTP
	// mirror uses the same seam so both protocols route identically.
	Resolve func(host, path string) (resolvedHost, space, resolvedPath string, hostKnown bool)
}

var isoDatePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// NewHandler returns the single entry point all three protocols route
// into once host/space/path have been resolved. The exact-path routes
// (menu, index, search forms, changes, feeds, robots) are registered on
// a gemini.Mux, which also carries mws as its middleware stack; routes
// that carry a trailing page name or revision segment can't be
// expressed as a Mux entry, so the Mux's NotFound falls through to
// site.routePrefix for those.
func NewHandler(site *Site, mws ...gemini.Middleware) gemini.Handler {
	mux := gemini.NewMux()
	mux.Use(mws...)

	mux.HandleFunc("/", site.serveMenu)
	mux.HandleFunc("/do/index", site.serveIndex)
	mux.HandleFunc("/do/match", func(w gemini.ResponseWriter, r *gemini.Request) {
		site.serveMatch(w, r, queryOf(r))
	})
	mux.HandleFunc("/do/search", func(w gemini.ResponseWriter, r *gemini.Request) {
		site.serveSearch(w, r, queryOf(r))
	})
	mux.HandleFunc("/do/changes", func(w gemini.ResponseWriter, r *gemini.Request) {
		site.serveChanges(w, r, 0)
	})
	mux.HandleFunc("/do/all/changes", site.serveAllChanges)
	mux.HandleFunc("/do/rss", site.serveRSS)
	mux.HandleFunc("/do/atom", site.serveAtom)
	mux.HandleFunc("/do/all/atom", site.serveAllAtom)
	mux.HandleFunc("/do/new", site.serveNew)
	mux.HandleFunc("/robots.txt", site.serveRobots)
	mux.NotFound(gemini.HandlerFunc(site.routePrefix))

	return mux
}

func queryOf(r *gemini.Request) string {
	if r.URL == nil {
		return ""
	}
	return r.URL.RawQuery
}

// routePrefix handles every route whose path carries a trailing page
// name or revision segment a Mux's exact-path map can't express.
func (s *Site) routePrefix(w gemini.ResponseWriter, r *gemini.Request) {
	path := r.Path

	switch {
	case strings.HasPrefix(path, "/page/"):
		s.servePage(w, r, strings.TrimPrefix(path, "/page/"))
	case strings.HasPrefix(path, "/raw/"):
		s.serveRaw(w, r, strings.TrimPrefix(path, "/raw/"))
	case strings.HasPrefix(path, "/html/"):
		s.serveHTML(w, r, strings.TrimPrefix(path, "/html/"))
	case strings.HasPrefix(path, "/history/"):
		s.serveHistory(w, r, strings.TrimPrefix(path, "/history/"))
	case strings.HasPrefix(path, "/diff/"):
		s.serveDiff(w, r, strings.TrimPrefix(path, "/diff/"))
	case strings.HasPrefix(path, "/file/"):
		s.serveFile(w, r, strings.TrimPrefix(path, "/file/"))
	case strings.HasPrefix(path, "/do/more/"):
		n, _ := strconv.Atoi(strings.TrimPrefix(path, "/do/more/"))
		s.serveChanges(w, r, n)
	default:
		w.WriteHeader(gemini.StatusNotFound, "not found")
	}
}

func (s *Site) menuItems() []ext.MenuItem {
	if s.Menu == nil {
		return nil
	}
	return s.Menu.MenuItems()
}

func (s *Site) footer(space, name string) string {
	if s.Footer == nil {
		return ""
	}
	return s.Footer.Footer(space, name)
}

func (s *Site) serveMenu(w gemini.ResponseWriter, r *gemini.Request) {
	var b strings.Builder

	if s.Cfg.MainPage != "" {
		if text, _, err := s.Store.ReadPage(r.Space, s.Cfg.MainPage); err == nil {
			b.WriteString(text)
			b.WriteString("\n")
		}
	}

	for _, p := range s.Cfg.ExtraPages {
		fmt.Fprintf(&b, "=> /page/%s %s\n", p, p)
	}
	for _, item := range s.menuItems() {
		fmt.Fprintf(&b, "=> %s %s\n", item.URL, item.Label)
	}

	names, err := s.Store.ListPages(r.Space)
	if err == nil {
		blog := recentDatedPages(names, 10)
		if len(blog) > 0 {
			b.WriteString("\n## Recent pages\n")
			for _, n := range blog {
				fmt.Fprintf(&b, "=> /page/%s %s\n", n, n)
			}
		}
	}

	b.WriteString("\n=> /do/index All pages\n")
	b.WriteString("=> /do/changes Changes\n")

	w.WriteHeader(gemini.StatusSuccess, gemini.MimeType)
	w.Write([]byte(b.String()))
}

// recentDatedPages returns up to n page names matching a leading
// YYYY-MM-DD date prefix, newest first.
func recentDatedPages(names []string, n int) []string {
	var dated []string
	for _, name := range names {
		if isoDatePrefix.MatchString(name) {
			dated = append(dated, name)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dated)))
	if len(dated) > n {
		dated = dated[:n]
	}
	return dated
}

func (s *Site) serveIndex(w gemini.ResponseWriter, r *gemini.Request) {
	names, err := s.Store.ListPages(r.Space)
	if err != nil {
		w.WriteHeader(gemini.StatusTemporaryFailure, "index unavailable")
		return
	}

	var b strings.Builder
	b.WriteString("# All pages\n")
	for _, n := range names {
		fmt.Fprintf(&b, "=> /page/%s %s\n", n, n)
	}

	w.WriteHeader(gemini.StatusSuccess, gemini.MimeType)
	w.Write([]byte(b.String()))
}

func (s *Site) serveMatch(w gemini.ResponseWriter, r *gemini.Request, query string) {
	if query == "" {
		w.WriteHeader(gemini.StatusInput, "Search page titles")
		return
	}
	names, err := s.Store.ListPages(r.Space)
	if err != nil {
		w.WriteHeader(gemini.StatusTemporaryFailure, "index unavailable")
		return
	}

	needle := strings.ToLower(unescapeQuery(query))
	var matches []string
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), needle) {
			matches = append(matches, n)
		}
	}

	writeMatchList(w, "# Matching pages", matches)
}

func (s *Site) serveSearch(w gemini.ResponseWriter, r *gemini.Request, query string) {
	if query == "" {
		w.WriteHeader(gemini.StatusInput, "Search page text")
		return
	}
	names, err := s.Store.ListPages(r.Space)
	if err != nil {
		w.WriteHeader(gemini.StatusTemporaryFailure, "index unavailable")
		return
	}

	needle := strings.ToLower(unescapeQuery(query))
	var matches []string
	for _, n := range names {
		text, _, err := s.Store.ReadPage(r.Space, n)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(text), needle) {
			matches = append(matches, n)
		}
	}

	writeMatchList(w, "# Search results", matches)
}

func writeMatchList(w gemini.ResponseWriter, title string, matches []string) {
	truncated := false
	if len(matches) > 100 {
		matches = matches[:100]
		truncated = true
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	for _, n := range matches {
		fmt.Fprintf(&b, "=> /page/%s %s\n", n, n)
	}
	if truncated {
		b.WriteString("\n(results truncated at 100)\n")
	}

	w.WriteHeader(gemini.StatusSuccess, gemini.MimeType)
	w.Write([]byte(b.String()))
}

func unescapeQuery(raw string) string {
	return strings.ReplaceAll(raw, "+", " ")
}

func (s *Site) serveNew(w gemini.ResponseWriter, r *gemini.Request) {
	w.WriteHeader(gemini.StatusInput, "New page name")
}
