package middleware

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kensanata/gemini-wiki/gemini"
	"github.com/kensanata/gemini-wiki/internal/phoebelog"
)

// Logger records one structured entry per request, replacing the
// teacher's fmt.Fprintf apache-style line (and fixing its io.Writer
// handler signature, which never satisfied gemini.Handler) with the
// logrus fields used everywhere else in this server.
func Logger(log *logrus.Logger) func(next gemini.Handler) gemini.Handler {
	return func(next gemini.Handler) gemini.Handler {
		fn := func(w gemini.ResponseWriter, r *gemini.Request) {
			t := time.Now()

			ri := gemini.NewInterceptor(w)
			next.ServeGemini(ri, r)
			ri.Flush()

			ip := r.RemoteAddr
			if idx := strings.LastIndex(ip, ":"); idx >= 0 {
				ip = ip[:idx]
			}

			fields := phoebelog.Request(r.Host, r.Space, r.Path, ip)
			fields["status"] = ri.Code
			fields["duration"] = time.Since(t).String()
			log.WithFields(fields).Debug("request")
		}
		return gemini.HandlerFunc(fn)
	}
}
