// Package dispatch owns the TLS accept loop shared by Gemini, Titan
// and HTTP, grounded on the teacher gmifs' gemini.Server.ListenAndServe
// in gemini/gemini.go: a single listener, a semaphore-bounded
// connection queue, a SIGHUP-triggered reload goroutine and a
// context-bounded Shutdown using the same self-dial unstick trick. What
// changed is what happens after the request line is read — spec.md
// §4.4 asks one listener to carry three protocols, so the connection
// handler now classifies the line before choosing a handler instead of
// assuming Gemini.
package dispatch

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/kensanata/gemini-wiki/gemini"
	"github.com/kensanata/gemini-wiki/internal/ext"
	"github.com/kensanata/gemini-wiki/titan"
)

// protocol identifies which wire format a connection's first line belongs to.
type protocol int

const (
	protoUnknown protocol = iota
	protoGemini
	protoTitan
	protoHTTP
)

var httpRequestLine = regexp.MustCompile(`^(GET|HEAD|POST|PUT|DELETE|OPTIONS|CONNECT|TRACE|PATCH)\s+\S+\s+HTTP/1\.[01]$`)

func classify(line string) protocol {
	switch {
	case strings.HasPrefix(line, "titan://"):
		return protoTitan
	case strings.HasPrefix(line, "gemini://"):
		return protoGemini
	case httpRequestLine.MatchString(line):
		return protoHTTP
	default:
		return protoUnknown
	}
}

// TitanOptions is forwarded to titan.Serve for each accepted upload.
type TitanOptions = titan.Options

// Server accepts TLS connections and routes each to the Gemini, Titan
// or HTTP handler according to its first line.
type Server struct {
	Addr string

	Logger *logrus.Logger

	TLSConfig       *tls.Config
	TLSConfigLoader func() (*tls.Config, error)

	GeminiHandler gemini.Handler
	HTTPHandler   http.Handler
	TitanOptions  TitanOptions
	TitanHandler  titan.Handler // optional override, defaults to titan.Serve

	// Resolve maps a request's authority and path to (host, space,
	// path), plus whether the authority is one of the declared hosts.
	// It is supplied by the caller instead of imported directly so
	// dispatch does not depend on internal/config or internal/router.
	Resolve func(host, path string) (resolvedHost, space, resolvedPath string, hostKnown bool)

	// Extension is tried before built-in routing (spec.md §4.4).
	Extension ext.RequestHandler

	ReadTimeout  time.Duration
	BodyTimeout  time.Duration
	MaxOpenConns int

	listener       net.Listener
	shutdown       bool
	closed         chan struct{}
	sighupListener chan struct{}
}

func (s *Server) log(v string) {
	if s.Logger == nil {
		return
	}
	s.Logger.Info(v)
}

func (s *Server) logf(format string, v ...interface{}) {
	if s.Logger == nil {
		return
	}
	s.Logger.Infof(format, v...)
}

func (s *Server) loadTLS() (err error) {
	s.TLSConfig, err = s.TLSConfigLoader()
	return err
}

// reloadOnSighup blocks reloading s.TLSConfig (and, via reload, calling
// back into whatever rebuilt the rest of the server's configuration)
// each time the process receives SIGHUP, until Shutdown closes s.
func (s *Server) reloadOnSighup() {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	for {
		select {
		case <-hup:
			s.log("reloading configuration and certificates")
			if s.listener != nil {
				if err := s.loadTLS(); err != nil {
					s.logf("critical: failed to reload tls config: %v", err)
					continue
				}
				s.listener.Close()
			}
		case <-s.closed:
			close(s.sighupListener)
			return
		}
	}
}

// ListenAndServe runs the accept loop until Shutdown is called.
func (s *Server) ListenAndServe() error {
	if err := s.loadTLS(); err != nil {
		return err
	}

	s.sighupListener = make(chan struct{})
	go s.reloadOnSighup()

	for {
		s.closed = make(chan struct{})

		var err error
		s.listener, err = tls.Listen("tcp", s.Addr, s.TLSConfig)
		if err != nil {
			return fmt.Errorf("dispatch: listen: %w", err)
		}

		queue := make(chan net.Conn, s.MaxOpenConns)
		go s.handleConnectionQueue(queue)

		s.logf("accepting connections on %v", s.listener.Addr())
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				s.logf("accept error: %v", err)
				break
			}
			queue <- conn

			if s.shutdown {
				break
			}
		}

		close(s.closed)
		if s.shutdown {
			break
		}
	}

	s.log("closing listener")
	return s.listener.Close()
}

func (s *Server) handleConnectionQueue(queue chan net.Conn) {
	type semaphore chan struct{}
	sem := make(semaphore, s.MaxOpenConns)
	for conn := range queue {
		sem <- struct{}{}
		go s.handleConnection(conn, sem)
	}
}

func (s *Server) handleConnection(conn net.Conn, sem chan struct{}) {
	defer func() {
		conn.Close()
		<-sem
	}()

	type lineResult struct {
		line string
		err  error
	}
	lines := make(chan lineResult, 1)
	br := bufio.NewReader(conn)

	go func() {
		line, err := br.ReadString('\n')
		if err != nil && line == "" {
			lines <- lineResult{err: gemini.Error(gemini.StatusTemporaryFailure, gemini.ErrEmptyRequest)}
			return
		}
		lines <- lineResult{line: line}
	}()

	select {
	case res := <-lines:
		if res.err != nil {
			if !errors.Is(res.err, gemini.ErrEmptyRequest) {
				s.logf("read error from %s: %v", conn.RemoteAddr(), res.err)
			}
			return
		}
		s.route(conn, br, res.line)
	case <-time.After(s.ReadTimeout):
		w := gemini.NewWriter(conn)
		w.WriteHeader(gemini.StatusServerUnavailable, "request timeout")
	}
}

func (s *Server) route(conn net.Conn, br *bufio.Reader, rawLine string) {
	trimmed := strings.TrimSpace(rawLine)
	remote := conn.RemoteAddr().String()

	if s.Extension != nil {
		headers := map[string][]string{}
		var buf bytes.Buffer
		if s.Extension.ServeRequest(&buf, trimmed, headers) {
			io.Copy(conn, &buf)
			return
		}
	}

	switch classify(trimmed) {
	case protoTitan:
		s.serveTitan(conn, br, trimmed, remote)
	case protoGemini:
		s.serveGemini(conn, trimmed, remote)
	case protoHTTP:
		s.serveHTTP(conn, br, rawLine)
	default:
		w := gemini.NewWriter(conn)
		w.WriteHeader(gemini.StatusBadRequest, "unrecognized request")
	}
}

func (s *Server) serveGemini(conn net.Conn, line, remote string) {
	w := gemini.NewWriter(conn)

	if len(line) > gemini.URLMaxBytes {
		w.WriteHeader(gemini.StatusBadRequest, "request line too long")
		return
	}
	if !utf8.ValidString(line) {
		w.WriteHeader(gemini.StatusBadRequest, "invalid utf-8")
		return
	}

	u, err := url.Parse(line)
	if err != nil {
		w.WriteHeader(gemini.StatusBadRequest, "malformed url")
		return
	}
	if u.Host == "" {
		w.WriteHeader(gemini.StatusBadRequest, "missing host")
		return
	}

	host, space, path, hostKnown := s.Resolve(u.Host, u.Path)
	if !hostKnown {
		w.WriteHeader(gemini.StatusProxyRequestRefused, "unknown host")
		return
	}

	ctx := context.Background()
	r := gemini.NewRequest(ctx, u, line, remote)
	r.Host = host
	r.Space = space
	r.Path = path

	s.GeminiHandler.ServeGemini(w, r)
}

func (s *Server) serveTitan(conn net.Conn, br *bufio.Reader, line, remote string) {
	w := gemini.NewWriter(conn)

	if len(line) > gemini.URLMaxBytes {
		w.WriteHeader(gemini.StatusBadRequest, "request line too long")
		return
	}

	req, err := titan.Parse(context.Background(), line, remote)
	if err != nil {
		var gerr *gemini.GmiError
		if errors.As(err, &gerr) {
			w.WriteHeader(gerr.Code, gerr.Error())
			return
		}
		w.WriteHeader(gemini.StatusBadRequest, "malformed titan request")
		return
	}

	host, space, path, hostKnown := s.Resolve(req.Host, "/"+req.Name)
	if !hostKnown {
		w.WriteHeader(gemini.StatusProxyRequestRefused, "unknown host")
		return
	}
	req.Host = host
	req.Space = space
	req.Name = strings.TrimPrefix(path, "/")

	// base timeout plus roughly 1s/10KB, matching spec.md §5's "60s or
	// proportional to declared size".
	timeout := s.BodyTimeout + time.Duration(req.Size/10240)*time.Second
	conn.SetReadDeadline(time.Now().Add(timeout))

	handler := s.TitanHandler
	if handler == nil {
		handler = titan.HandlerFunc(func(w gemini.ResponseWriter, r *titan.Request, body io.Reader) {
			titan.Serve(w, r, body, s.TitanOptions)
		})
	}
	handler.ServeTitan(w, req, br)
}

func (s *Server) serveHTTP(conn net.Conn, br *bufio.Reader, firstLine string) {
	combined := io.MultiReader(strings.NewReader(firstLine), br)
	treq, err := http.ReadRequest(bufio.NewReader(combined))
	if err != nil {
		fmt.Fprint(conn, "HTTP/1.1 400 Bad Request\r\n\r\n")
		return
	}

	rw := &httpResponseWriter{conn: conn, header: make(http.Header)}
	s.HTTPHandler.ServeHTTP(rw, treq)
	rw.finish()
}

// httpResponseWriter is a minimal http.ResponseWriter writing directly
// to the raw connection, since this listener never goes through
// net/http.Server.
type httpResponseWriter struct {
	conn        net.Conn
	header      http.Header
	wroteHeader bool
	status      int
}

func (w *httpResponseWriter) Header() http.Header { return w.header }

func (w *httpResponseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = status
	fmt.Fprintf(w.conn, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	w.header.Write(w.conn)
	fmt.Fprint(w.conn, "\r\n")
}

func (w *httpResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.conn.Write(b)
}

func (w *httpResponseWriter) finish() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
}

// Shutdown uses the teacher's self-pipe trick to unstick the accept
// loop and waits up to ctx's deadline for in-flight handlers to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log("shutdown requested")
	t := time.Now()
	go func() {
		s.shutdown = true
		conn, err := tls.Dial("tcp", s.Addr, &tls.Config{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close()
	}()

	select {
	case <-s.closed:
		s.log("all connections drained")
	case <-ctx.Done():
		s.logf("shutdown deadline exceeded after %v, closing listener", time.Since(t))
		if err := s.listener.Close(); err != nil {
			s.logf("error closing listener: %v", err)
		}
	}
	<-s.sighupListener
	return nil
}
