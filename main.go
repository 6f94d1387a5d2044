// Command phoebed runs the Phoebe wiki server: a single TLS listener
// speaking Gemini (read), Titan (write) and a read-only HTTPS mirror,
// dispatching on the first line of each connection (spec.md §2, §4.4).
//
// Grounded on the teacher gmifs' main.go: flag parsing, certificate
// loading, and an accept loop handed off to a bounded worker pool.
// Phoebe's accept loop itself lives in internal/dispatch, since it is
// now shared across three protocols instead of owned by main; main's
// job shrinks to building the immutable Config (Design Note §9),
// wiring the Gemini/Titan/HTTP handlers on top of one Store, and
// reacting to SIGHUP/fsnotify by rebuilding all three and swapping an
// atomic pointer, exactly as Design Note §9's "Hangup reload" asks.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"os/user"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/kensanata/gemini-wiki/gemini"
	"github.com/kensanata/gemini-wiki/internal/config"
	"github.com/kensanata/gemini-wiki/internal/dispatch"
	"github.com/kensanata/gemini-wiki/internal/ext"
	"github.com/kensanata/gemini-wiki/internal/phoebelog"
	"github.com/kensanata/gemini-wiki/internal/router"
	"github.com/kensanata/gemini-wiki/internal/store"
	"github.com/kensanata/gemini-wiki/internal/wikihandlers"
	"github.com/kensanata/gemini-wiki/middleware"
	"github.com/kensanata/gemini-wiki/titan"
)

const (
	certValidityDays = 365
	readTimeout      = 30 * time.Second
	titanBodyTimeout = 60 * time.Second
	shutdownGrace    = 5 * time.Second
	maxOpenConns     = 256
	responseCacheN   = 64
)

// live is everything a reload rebuilds from scratch and swaps in with
// one atomic store, so in-flight connections keep running against the
// old values while new connections see the new ones (spec.md §5
// "Hangup reload": "in-flight connections continue with old
// configuration").
type live struct {
	cfg          *config.Config
	gemini       gemini.Handler
	http         http.Handler
	titanOptions titan.Options
}

func main() {
	var initializers []ext.Initializer // no built-in extensions ship with Phoebe; spec.md §1

	cfg, err := config.Build(os.Args[1:], initializers)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := phoebelog.New(cfg.LogLevel)
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "phoebed: opening log file: %v\n", err)
			os.Exit(1)
		}
		log.Out = f
	}

	if cfg.Setsid {
		if _, err := syscall.Setsid(); err != nil {
			log.WithError(err).Warn("setsid failed")
		}
	}

	if cfg.PIDFile != "" {
		if err := os.WriteFile(cfg.PIDFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
			log.WithError(err).Fatal("writing pid file")
		}
	}

	st := store.New(cfg.WikiDir, log)
	if err := ensureSpaces(st, cfg); err != nil {
		log.WithError(err).Fatal("preparing wiki directory")
	}

	if err := dropPrivileges(cfg.User, cfg.Group); err != nil {
		log.WithError(err).Fatal("dropping privileges")
	}

	var cfgRef atomic.Pointer[config.Config]
	cfgRef.Store(cfg)

	var liveRef atomic.Pointer[live]
	liveRef.Store(build(cfg, st, log))

	srv := &dispatch.Server{
		Logger: log,
		TLSConfigLoader: func() (*tls.Config, error) {
			return buildTLSConfig(cfgRef.Load(), log)
		},
		GeminiHandler: gemini.HandlerFunc(func(w gemini.ResponseWriter, r *gemini.Request) {
			liveRef.Load().gemini.ServeGemini(w, r)
		}),
		HTTPHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			liveRef.Load().http.ServeHTTP(w, r)
		}),
		TitanHandler: titan.HandlerFunc(func(w gemini.ResponseWriter, r *titan.Request, body io.Reader) {
			titan.Serve(w, r, body, liveRef.Load().titanOptions)
		}),
		Resolve: func(host, path string) (string, string, string, bool) {
			c := cfgRef.Load()
			if !router.HostKnown(c, host) {
				return host, "", path, false
			}
			r := router.Resolve(c, host, path)
			return r.Host, r.Space, r.Path, true
		},
		ReadTimeout:  readTimeout,
		BodyTimeout:  titanBodyTimeout,
		MaxOpenConns: maxOpenConns,
	}

	reload := func(reason string) {
		log.Infof("reloading configuration (%s)", reason)
		newCfg, err := config.Reload(cfgRef.Load(), initializers)
		if err != nil {
			log.WithError(err).Error("reload failed, keeping previous configuration")
			return
		}
		if err := ensureSpaces(st, newCfg); err != nil {
			log.WithError(err).Error("reload failed preparing new spaces, keeping previous configuration")
			return
		}
		cfgRef.Store(newCfg)
		liveRef.Store(build(newCfg, st, log))
	}

	if cfg.LogFile != "" {
		go watchLogFileReopen(cfg.LogFile, log)
	}
	watchConfigFile(findWikiConfigFlag(os.Args[1:]), func() { reload("wiki_config changed") }, log)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			reload("SIGHUP")
		}
	}()

	ports := cfg.Ports
	if len(ports) == 0 {
		ports = []int{config.DefaultAddress}
	}

	errc := make(chan error, len(ports))
	servers := make([]*dispatch.Server, 0, len(ports))
	for _, port := range ports {
		s := *srv
		s.Addr = fmt.Sprintf(":%d", port)
		servers = append(servers, &s)
		go func(s *dispatch.Server) { errc <- s.ListenAndServe() }(s)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errc:
		log.WithError(err).Error("server exited")
	case sig := <-stop:
		log.Infof("received %v, shutting down", sig)
		for _, s := range servers {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			s.Shutdown(ctx)
			cancel()
		}
	}
}

// build constructs a fresh, internally-consistent set of handlers for
// cfg: a new Site, a new middleware chain around it, a new read-only
// HTTP mirror, and fresh Titan options. Called once at startup and
// again on every reload.
func build(cfg *config.Config, st *store.Store, log *logrus.Logger) *live {
	resolve := func(host, path string) (string, string, string, bool) {
		if !router.HostKnown(cfg, host) {
			return host, "", path, false
		}
		r := router.Resolve(cfg, host, path)
		return r.Host, r.Space, r.Path, true
	}

	site := &wikihandlers.Site{
		Store:   st,
		Cfg:     cfg,
		Log:     log,
		Resolve: resolve,
	}

	handler := wikihandlers.NewHandler(site, middleware.Logger(log), middleware.Cache(responseCacheN))

	return &live{
		cfg:    cfg,
		gemini: handler,
		http:   &wikihandlers.HTTPHandler{Site: site, Handler: handler},
		titanOptions: titan.Options{
			Store:         st,
			Tokens:        cfg.Tokens,
			PageSizeLimit: cfg.PageSizeLimit,
			AllowedMIME:   cfg.AllowedMIME,
		},
	}
}

// ensureSpaces creates the on-disk directory tree for the root space
// and every declared space, so a fresh --wiki_dir is writable from the
// first request (spec.md §4.1).
func ensureSpaces(st *store.Store, cfg *config.Config) error {
	seen := map[string]bool{"": true}
	if err := st.EnsureSpace(""); err != nil {
		return err
	}
	for _, sp := range cfg.Spaces {
		if seen[sp.Name] {
			continue
		}
		seen[sp.Name] = true
		if err := st.EnsureSpace(sp.Name); err != nil {
			return fmt.Errorf("preparing space %q: %w", sp.Name, err)
		}
	}
	return nil
}

// dropPrivileges implements spec.md §6's --user/--group flags: once
// the listener is bound, the process may shed root for an unprivileged
// account. Group is dropped before user since an unprivileged user
// typically cannot change its own group afterward.
func dropPrivileges(userName, groupName string) error {
	if groupName != "" {
		g, err := user.LookupGroup(groupName)
		if err != nil {
			return fmt.Errorf("group %q: %w", groupName, err)
		}
		gid, err := strconv.Atoi(g.Gid)
		if err != nil {
			return err
		}
		if err := syscall.Setgid(gid); err != nil {
			return fmt.Errorf("setgid: %w", err)
		}
	}
	if userName != "" {
		u, err := user.Lookup(userName)
		if err != nil {
			return fmt.Errorf("user %q: %w", userName, err)
		}
		uid, err := strconv.Atoi(u.Uid)
		if err != nil {
			return err
		}
		if err := syscall.Setuid(uid); err != nil {
			return fmt.Errorf("setuid: %w", err)
		}
	}
	return nil
}

// buildTLSConfig resolves a certificate per SNI name from cfg.Hosts,
// falling back to a freshly generated self-signed certificate (spec.md
// §4.4 "selects the certificate bound to the requested server name;
// falls back to the default certificate").
func buildTLSConfig(cfg *config.Config, log *logrus.Logger) (*tls.Config, error) {
	certs := make(map[string]*tls.Certificate, len(cfg.Hosts))
	for _, h := range cfg.Hosts {
		if h.CertFile == "" || h.KeyFile == "" {
			continue
		}
		cert, err := tls.LoadX509KeyPair(h.CertFile, h.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading certificate for %s: %w", h.Name, err)
		}
		certs[h.Name] = &cert
	}

	defaultCN := "localhost"
	if len(cfg.Hosts) > 0 {
		defaultCN = cfg.Hosts[0].Name
	}
	fallback, err := gemini.GenX509KeyPair(defaultCN, certValidityDays)
	if err != nil {
		return nil, fmt.Errorf("generating self-signed certificate: %w", err)
	}

	return gemini.SNIConfig(func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
		if cert, ok := certs[hello.ServerName]; ok {
			return cert, nil
		}
		log.Debugf("no certificate declared for SNI %q, using default", hello.ServerName)
		return &fallback, nil
	}), nil
}

// watchConfigFile mirrors SIGHUP onto a filesystem change of path,
// following the DOMAIN STACK's fsnotify wiring (SPEC_FULL.md): editing
// --wiki_config behaves like `kill -HUP`. No-op if path is empty.
func watchConfigFile(path string, onChange func(), log *logrus.Logger) {
	if path == "" {
		return
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Warn("fsnotify: could not start config watcher")
		return
	}
	if err := w.Add(path); err != nil {
		log.WithError(err).Warnf("fsnotify: could not watch %s", path)
		w.Close()
		return
	}
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					onChange()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("fsnotify: watch error")
			}
		}
	}()
}

// watchLogFileReopen reopens the log file on SIGHUP, the usual
// logrotate-friendly convention, matching spec.md §9's "reopen log".
func watchLogFileReopen(path string, log *logrus.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	for range hup {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			log.WithError(err).Warn("reopening log file failed")
			continue
		}
		old := log.Out
		log.Out = f
		if closer, ok := old.(io.Closer); ok {
			closer.Close()
		}
	}
}

const wikiConfigFlagPrefix = "--wiki_config="

func findWikiConfigFlag(argv []string) string {
	for i, a := range argv {
		if a == "--wiki_config" && i+1 < len(argv) {
			return argv[i+1]
		}
		if strings.HasPrefix(a, wikiConfigFlagPrefix) {
			return strings.TrimPrefix(a, wikiConfigFlagPrefix)
		}
	}
	return ""
}
