// Package router resolves a request's authoritative host, wiki space
// and remaining path from a raw URL, the one piece of logic shared by
// all three protocol handlers (Gemini, Titan and HTTP). Grounded on the
// teacher's gemini.Server host-matching in cmd/gmifs/main.go, extended
// from a single implicit space to spec.md §2's named, optionally
// host-scoped spaces.
package router

import (
	"net"
	"strings"

	"github.com/kensanata/gemini-wiki/internal/config"
)

// NormalizeHost strips a trailing ":port" and lower-cases the result,
// so "Example.Com:1965" and "example.com" resolve identically.
func NormalizeHost(hostport string) string {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	return strings.ToLower(host)
}

// Resolved is a request's fully-resolved routing target.
type Resolved struct {
	Host  string
	Space string
	Path  string // always rooted at "/", space prefix stripped
}

// Resolve matches rawPath's leading segment against the spaces
// declared for host; a match consumes that segment into Space and
// leaves the remainder as Path. No match falls back to the root space
// (Space == "") with Path left untouched.
func Resolve(cfg *config.Config, host, rawPath string) Resolved {
	host = NormalizeHost(host)
	if rawPath == "" {
		rawPath = "/"
	}

	trimmed := strings.TrimPrefix(rawPath, "/")
	first, rest := trimmed, ""
	if idx := strings.IndexByte(trimmed, '/'); idx >= 0 {
		first, rest = trimmed[:idx], trimmed[idx:]
	}

	for _, name := range config.SpacesForHost(cfg.Spaces, host) {
		if name != "" && name == first {
			path := rest
			if path == "" {
				path = "/"
			}
			return Resolved{Host: host, Space: name, Path: path}
		}
	}

	return Resolved{Host: host, Space: "", Path: rawPath}
}

// HostKnown reports whether host was declared with --host, or no host
// was declared at all (single-host deployments skip SNI matching).
func HostKnown(cfg *config.Config, host string) bool {
	if len(cfg.Hosts) == 0 {
		return true
	}
	host = NormalizeHost(host)
	for _, h := range cfg.Hosts {
		if NormalizeHost(h.Name) == host {
			return true
		}
	}
	return false
}
