package wikihandlers

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/kensanata/gemini-wiki/gemini"
)

// HTTPHandler mirrors the Gemini routes read-only over HTTP (spec.md
// §4.7): only GET/HEAD are accepted, and the request is handed to the
// same gemini.Mux Gemini uses (via a gemini.Interceptor) so the two
// protocols never drift apart and share the same logging/caching
// middleware.
type HTTPHandler struct {
	Site    *Site
	Handler gemini.Handler
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch req.URL.Path {
	case "/default.css":
		h.serveDefaultCSS(w)
		return
	case "/favicon.ico":
		w.WriteHeader(http.StatusNotFound)
		return
	}

	host := req.Host
	u := &url.URL{Scheme: "gemini", Host: host, Path: req.URL.Path, RawQuery: req.URL.RawQuery}

	resolvedHost, space, path, hostKnown := h.Site.resolveForHTTP(host, req.URL.Path)
	if !hostKnown {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	gr := gemini.NewRequest(req.Context(), u, req.URL.Path, req.RemoteAddr)
	gr.Host = resolvedHost
	gr.Space = space
	gr.Path = path

	ri := gemini.NewInterceptor(nil)
	h.Handler.ServeGemini(ri, gr)

	w.Header().Set("Content-Type", httpMimeFor(ri.Meta))
	switch {
	case ri.Code == gemini.StatusSuccess:
		w.Header().Set("Content-Length", strconv.Itoa(ri.Body.Len()))
		w.WriteHeader(http.StatusOK)
	case ri.Code == gemini.StatusNotFound || ri.Code == gemini.StatusGone:
		w.WriteHeader(http.StatusNotFound)
	case ri.Code == gemini.StatusRedirectTemporary || ri.Code == gemini.StatusRedirectPermanent:
		http.Redirect(w, req, ri.Meta, http.StatusFound)
		return
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}

	if req.Method == http.MethodGet {
		w.Write(ri.Body.Bytes())
	}
}

func httpMimeFor(meta string) string {
	if meta == "" {
		return "text/plain; charset=UTF-8"
	}
	return meta
}

func (h *HTTPHandler) serveDefaultCSS(w http.ResponseWriter) {
	css := h.Site.Cfg.DefaultCSS
	if css == "" {
		css = defaultCSS
	}
	w.Header().Set("Content-Type", "text/css; charset=UTF-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(css)))
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	w.Write([]byte(css))
}

const defaultCSS = `body { max-width: 40em; margin: 2em auto; font-family: sans-serif; }
pre { overflow-x: auto; padding: 0.5em; background: #f4f4f4; }
blockquote { border-left: 3px solid #ccc; margin-left: 0; padding-left: 1em; }
`

// resolveForHTTP is a thin seam the real binary overrides via
// Site.Resolve; left as host-only/no-space resolution by default so
// this package has no hard dependency on internal/router.
func (s *Site) resolveForHTTP(host, path string) (resolvedHost, space, resolvedPath string, hostKnown bool) {
	if s.Resolve != nil {
		return s.Resolve(host, path)
	}
	return host, "", path, true
}
