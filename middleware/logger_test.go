package middleware

import (
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kensanata/gemini-wiki/gemini"
)

func TestLoggerFlushesResponseToOuterWriter(t *testing.T) {
	log, _ := logrustest.NewNullLogger()

	next := gemini.HandlerFunc(func(w gemini.ResponseWriter, r *gemini.Request) {
		w.WriteHeader(gemini.StatusSuccess, gemini.MimeType)
		w.Write([]byte("hello"))
	})

	h := Logger(log)(next)
	w := gemini.NewInterceptor(nil)
	h.ServeGemini(w, &gemini.Request{Host: "example.com", Path: "/page/Welcome"})

	assert.Equal(t, gemini.StatusSuccess, w.Code)
	assert.Equal(t, "hello", w.Body.String())
}

func TestLoggerRecordsStructuredFields(t *testing.T) {
	log, hook := logrustest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	next := gemini.HandlerFunc(func(w gemini.ResponseWriter, r *gemini.Request) {
		w.WriteHeader(gemini.StatusNotFound, "not found")
	})

	h := Logger(log)(next)
	w := gemini.NewInterceptor(nil)
	h.ServeGemini(w, &gemini.Request{
		Host:       "example.com",
		Space:      "docs",
		Path:       "/page/Missing",
		RemoteAddr: "203.0.113.9:53621",
	})

	require.Len(t, hook.Entries, 1)
	entry := hook.Entries[0]

	assert.Equal(t, "request", entry.Message)
	assert.Equal(t, "example.com", entry.Data["host"])
	assert.Equal(t, "docs", entry.Data["space"])
	assert.Equal(t, "/page/Missing", entry.Data["path"])
	assert.Equal(t, "203.0.113.9", entry.Data["remote"], "the port must be stripped off RemoteAddr")
	assert.Equal(t, gemini.StatusNotFound, entry.Data["status"])
	assert.Contains(t, entry.Data, "duration")
}

func TestLoggerRemoteAddrWithoutPortIsKeptAsIs(t *testing.T) {
	log, hook := logrustest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	next := gemini.HandlerFunc(func(w gemini.ResponseWriter, r *gemini.Request) {
		w.WriteHeader(gemini.StatusSuccess, gemini.MimeType)
	})

	h := Logger(log)(next)
	w := gemini.NewInterceptor(nil)
	h.ServeGemini(w, &gemini.Request{Host: "example.com", Path: "/", RemoteAddr: "203.0.113.9"})

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "203.0.113.9", hook.Entries[0].Data["remote"], "an address with no colon has nothing to strip")
}
