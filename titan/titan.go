// Package titan implements the Titan upload protocol (spec.md §4.6):
// Titan shares Gemini's line framing and status codes, so a Titan
// response is simply a Gemini response, and this package leans on the
// gemini package's ResponseWriter, status constants and GmiError
// rather than inventing a parallel vocabulary. The request/response
// shape mirrors the teacher's own gemini.Handler contract.
package titan

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/kensanata/gemini-wiki/gemini"
	"github.com/kensanata/gemini-wiki/internal/auth"
	"github.com/kensanata/gemini-wiki/internal/config"
	"github.com/kensanata/gemini-wiki/internal/contributor"
	"github.com/kensanata/gemini-wiki/internal/store"
)

// Request is a single parsed Titan upload, its body not yet read.
type Request struct {
	Host       string
	Space      string
	Name       string
	Mime       string
	Size       int64
	Token      string
	RemoteAddr string

	ctx  context.Context
	body io.Reader
}

func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// Handler serves one Titan upload, reading exactly Size bytes of body
// from body and replying on w as a Gemini response.
type Handler interface {
	ServeTitan(w gemini.ResponseWriter, r *Request, body io.Reader)
}

type HandlerFunc func(gemini.ResponseWriter, *Request, io.Reader)

func (f HandlerFunc) ServeTitan(w gemini.ResponseWriter, r *Request, body io.Reader) {
	f(w, r, body)
}

// Parse reads a Titan request line of the form
// titan://<authority>/<path>;mime=<m>;size=<n>;token=<t>
// (parameters in any order). It does not touch the connection body.
func Parse(ctx context.Context, rawuri, remoteAddr string) (*Request, error) {
	trimmed := strings.TrimSpace(rawuri)
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, gemini.Errorf(gemini.StatusBadRequest, "titan: %w", err)
	}
	if u.Scheme != "titan" {
		return nil, gemini.Error(gemini.StatusBadRequest, gemini.ErrUnknownProtocol)
	}
	if u.Host == "" {
		return nil, gemini.Error(gemini.StatusBadRequest, gemini.ErrInvalidHost)
	}

	path, params := splitParams(u.Path)

	req := &Request{
		Host:       u.Host,
		RemoteAddr: remoteAddr,
		ctx:        ctx,
	}

	for k, v := range params {
		switch k {
		case "mime":
			req.Mime = v
		case "size":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				return nil, gemini.Errorf(gemini.StatusBadRequest, "titan: invalid size %q", v)
			}
			req.Size = n
		case "token":
			req.Token = v
		}
	}
	if req.Mime == "" {
		req.Mime = "text/plain"
	}

	req.Name = strings.TrimPrefix(path, "/")
	return req, nil
}

// splitParams separates the leading "/path" from the trailing
// ";k=v;k=v" parameter string the Gemini URL parser leaves attached to
// the path component.
func splitParams(raw string) (path string, params map[string]string) {
	params = make(map[string]string)
	idx := strings.IndexByte(raw, ';')
	if idx < 0 {
		return raw, params
	}
	path = raw[:idx]
	for _, kv := range strings.Split(raw[idx+1:], ";") {
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		params[parts[0]] = parts[1]
	}
	return path, params
}

// IsFilePath reports whether path addresses the file store rather than
// the page store (spec.md §4.6.3: anything under "file/").
func IsFilePath(path string) bool {
	return strings.HasPrefix(path, "file/")
}

// Options bundles everything Serve needs beyond the parsed request and
// raw body reader.
type Options struct {
	Store         *store.Store
	Tokens        auth.Tokens
	PageSizeLimit int
	AllowedMIME   []string
}

// Serve validates and commits one Titan upload per spec.md §4.6, then
// writes a redirect response on success. The redirect target is the
// resource's path ("/page/<name>" or "/file/<name>", after the space
// prefix if any); it carries no scheme, host or port.
func Serve(w gemini.ResponseWriter, r *Request, body io.Reader, opts Options) {
	name := strings.TrimPrefix(r.Name, "file/")
	isFile := IsFilePath(r.Name)

	if r.Size > int64(opts.PageSizeLimit) {
		w.WriteHeader(gemini.StatusBadRequest, fmt.Sprintf("This wiki does not allow more than %d bytes per page", opts.PageSizeLimit))
		return
	}

	if isFile {
		if !config.MIMEAllowed(opts.AllowedMIME, r.Mime) {
			w.WriteHeader(gemini.StatusBadRequest, fmt.Sprintf("This wiki does not allow %s", r.Mime))
			return
		}
	} else if r.Mime != "text/plain" && r.Mime != "" {
		// spec.md §4.6 step 3: any other MIME type requires a file path
		// *and* an allow-listed MIME. A page path with a non-text/plain
		// MIME fails on the path half of that conjunction regardless of
		// the allow-list, so it's rejected outright rather than falling
		// through to config.MIMEAllowed.
		w.WriteHeader(gemini.StatusBadRequest, fmt.Sprintf("Pages must be text/plain, got %s", r.Mime))
		return
	}

	code := contributor.Code(remoteIP(r.RemoteAddr))
	if !opts.Tokens.Authorize(r.Space, r.Token, "") {
		w.WriteHeader(gemini.StatusBadRequest, "Your token is the wrong token")
		return
	}

	limited := io.LimitReader(body, r.Size)
	data := make([]byte, r.Size)
	if _, err := io.ReadFull(limited, data); err != nil {
		w.WriteHeader(gemini.StatusBadRequest, "short read")
		return
	}

	var commitErr error
	if isFile {
		commitErr = opts.Store.WriteFile(r.Space, name, data, r.Mime, code)
	} else {
		if err := store.ValidateName(name); err != nil {
			w.WriteHeader(gemini.StatusBadRequest, "invalid page name")
			return
		}
		_, commitErr = opts.Store.WritePage(r.Space, name, string(data), code)
	}
	if commitErr != nil {
		w.WriteHeader(gemini.StatusTemporaryFailure, "write failed")
		return
	}

	target := "/" + name
	if r.Space != "" {
		target = "/" + r.Space + target
	}
	if isFile {
		target = strings.Replace(target, "/"+name, "/file/"+name, 1)
	} else {
		target = strings.Replace(target, "/"+name, "/page/"+name, 1)
	}
	w.WriteHeader(gemini.StatusRedirectTemporary, target)
}

func remoteIP(remoteAddr string) string {
	if idx := strings.LastIndex(remoteAddr, ":"); idx >= 0 {
		return remoteAddr[:idx]
	}
	return remoteAddr
}
