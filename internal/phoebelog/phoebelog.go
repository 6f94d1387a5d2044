// Package phoebelog builds the process-wide structured logger.
//
// The teacher (n0x1m/gmifs) threads a single *log.Logger through
// gemini.Server and prefixes every line with "gmifs: ". Phoebe has
// three protocols and a store writing revisions concurrently, so a
// single prefix string stopped being enough context; we follow the
// rest of the retrieval pack (rcowham/gitp4transfer, router-for-me/
// CLIProxyAPI) and log structured fields through logrus instead,
// keeping the same "one logger, passed explicitly" discipline.
package phoebelog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a *logrus.Logger for the given --log_level (0-4, spec.md §6).
//
//	0 - errors only (logrus.ErrorLevel)
//	1 - + warnings (logrus.WarnLevel)
//	2 - + informational (logrus.InfoLevel)
//	3 - + request lines (logrus.DebugLevel)
//	4 - + per-line parse traces (logrus.TraceLevel)
func New(level int) *logrus.Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(levelFor(level))
	return l
}

func levelFor(level int) logrus.Level {
	switch {
	case level <= 0:
		return logrus.ErrorLevel
	case level == 1:
		return logrus.WarnLevel
	case level == 2:
		return logrus.InfoLevel
	case level == 3:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// Request returns the fields shared by every request-line log entry
// across Gemini, Titan and HTTP, mirroring the columns gmifs'
// middleware.Logger wrote with fmt.Fprintf, but structured.
func Request(host, space, path, remote string) logrus.Fields {
	return logrus.Fields{
		"host":   host,
		"space":  space,
		"path":   path,
		"remote": remote,
	}
}
