package wikihandlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kensanata/gemini-wiki/gemini"
	"github.com/kensanata/gemini-wiki/internal/gemtext"
)

// splitNameRev splits a "<name>" or "<name>/<rev>" path tail.
func splitNameRev(tail string) (name string, rev int, hasRev bool) {
	idx := strings.LastIndexByte(tail, '/')
	if idx < 0 {
		return tail, 0, false
	}
	if n, err := strconv.Atoi(tail[idx+1:]); err == nil {
		return tail[:idx], n, true
	}
	return tail, 0, false
}

func (s *Site) servePage(w gemini.ResponseWriter, r *gemini.Request, tail string) {
	name, rev, hasRev := splitNameRev(tail)

	var text string
	var current int
	var err error
	if hasRev {
		text, err = s.Store.ReadPageRevision(r.Space, name, rev)
		current = rev
	} else {
		text, current, err = s.Store.ReadPage(r.Space, name)
	}
	if err != nil {
		w.WriteHeader(gemini.StatusNotFound, "page not found")
		return
	}

	var b strings.Builder
	b.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		b.WriteString("\n")
	}

	if !hasRev {
		fmt.Fprintf(&b, "\n=> /history/%s History (revision %d)\n", name, current)
		fmt.Fprintf(&b, "=> /raw/%s Raw text\n", name)
		fmt.Fprintf(&b, "=> /html/%s HTML rendering\n", name)
		if extra := s.footer(r.Space, name); extra != "" {
			b.WriteString(extra)
			b.WriteString("\n")
		}
	}

	w.WriteHeader(gemini.StatusSuccess, gemini.MimeType)
	w.Write([]byte(b.String()))
}

func (s *Site) serveRaw(w gemini.ResponseWriter, r *gemini.Request, tail string) {
	name, rev, hasRev := splitNameRev(tail)

	var text string
	var err error
	if hasRev {
		text, err = s.Store.ReadPageRevision(r.Space, name, rev)
	} else {
		text, _, err = s.Store.ReadPage(r.Space, name)
	}
	if err != nil {
		w.WriteHeader(gemini.StatusNotFound, "page not found")
		return
	}

	w.WriteHeader(gemini.StatusSuccess, "text/plain; charset=UTF-8")
	w.Write([]byte(text))
}

func (s *Site) serveHTML(w gemini.ResponseWriter, r *gemini.Request, tail string) {
	name, rev, hasRev := splitNameRev(tail)

	var text string
	var err error
	if hasRev {
		text, err = s.Store.ReadPageRevision(r.Space, name, rev)
	} else {
		text, _, err = s.Store.ReadPage(r.Space, name)
	}
	if err != nil {
		w.WriteHeader(gemini.StatusNotFound, "page not found")
		return
	}

	lines := gemtext.Parse(text)
	html := gemtext.RenderHTML(lines, gemtext.DefaultLinkRewriter(r.Space))

	w.WriteHeader(gemini.StatusSuccess, "text/html; charset=UTF-8")
	w.Write([]byte(html))
}

func (s *Site) serveHistory(w gemini.ResponseWriter, r *gemini.Request, name string) {
	hist, err := s.Store.History(r.Space, name)
	if err != nil {
		w.WriteHeader(gemini.StatusNotFound, "page not found")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# History of %s\n", name)
	for _, rev := range hist {
		if rev.Current {
			fmt.Fprintf(&b, "=> /page/%s/%d revision %d (current)\n", name, rev.Number, rev.Number)
		} else {
			fmt.Fprintf(&b, "=> /page/%s/%d revision %d\n", name, rev.Number, rev.Number)
			fmt.Fprintf(&b, "=> /diff/%s/%d diff against previous\n", name, rev.Number+1)
		}
	}

	w.WriteHeader(gemini.StatusSuccess, gemini.MimeType)
	w.Write([]byte(b.String()))
}

func (s *Site) serveDiff(w gemini.ResponseWriter, r *gemini.Request, tail string) {
	name, rev, hasRev := splitNameRev(tail)
	if !hasRev || rev < 1 {
		w.WriteHeader(gemini.StatusBadRequest, "missing revision")
		return
	}

	newText, err := s.Store.ReadPageRevision(r.Space, name, rev)
	if err != nil {
		w.WriteHeader(gemini.StatusNotFound, "revision not found")
		return
	}

	oldText := ""
	if rev > 1 {
		oldText, err = s.Store.ReadPageRevision(r.Space, name, rev-1)
		if err != nil {
			w.WriteHeader(gemini.StatusNotFound, "previous revision not found")
			return
		}
	}

	diff := renderDiff(oldText, newText)

	var b strings.Builder
	fmt.Fprintf(&b, "# Diff of %s, revision %d\n```\n", name, rev)
	b.WriteString(diff)
	b.WriteString("```\n")

	w.WriteHeader(gemini.StatusSuccess, gemini.MimeType)
	w.Write([]byte(b.String()))
}

func (s *Site) serveFile(w gemini.ResponseWriter, r *gemini.Request, name string) {
	data, mime, err := s.Store.ReadFile(r.Space, name)
	if err != nil {
		w.WriteHeader(gemini.StatusNotFound, "file not found")
		return
	}

	w.WriteHeader(gemini.StatusSuccess, mime)
	w.Write(data)
}
