// Package ext defines the narrow, compile-time extension ABI called
// for by Design Note §9: the source's in-process scripting
// (@init, @extensions, @main_menu, @footer arrays of arbitrary code) is
// replaced with four small Go extension interfaces plus the
// ConfigBuilder handed to Initializer. Phoebe ships no built-in
// extension implementing these — wiring real extensions in is out of
// scope per spec.md §1 ("the extension/config hook mechanism beyond
// noting its contract") — but the config builder, the dispatcher and
// the page/menu renderer call through these interfaces, so a
// deployment can register one.
package ext

import "io"

// Initializer runs once at startup (and again on reload) and may
// contribute to the configuration being built.
type Initializer interface {
	Init(b ConfigBuilder) error
}

// ConfigBuilder is the subset of configuration construction exposed to
// extensions, narrow by design instead of a shared mutable global.
type ConfigBuilder interface {
	AddMenuItem(label, target string)
	SetDefaultCSS(css string)
}

// RequestHandler is offered the raw request line and headers before
// built-in routing runs (spec.md §4.4 "Extension hook"); the first to
// return a non-nil, true claims the request.
type RequestHandler interface {
	ServeRequest(w io.Writer, requestLine string, headers map[string][]string) (handled bool)
}

// MenuContributor adds extra entries to a space's main menu (spec.md §4.5 "/").
type MenuContributor interface {
	MenuItems() []MenuItem
}

// MenuItem is one link rendered on a space's main menu.
type MenuItem struct {
	Label string
	URL   string
}

// FooterContributor adds extra footer lines under a rendered page
// (spec.md §4.5 "/page/<name>" footer: "extra footers").
type FooterContributor interface {
	Footer(space, name string) string
}
