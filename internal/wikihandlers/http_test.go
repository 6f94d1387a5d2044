package wikihandlers

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kensanata/gemini-wiki/gemini"
)

func newTestHTTPHandler(t *testing.T) *HTTPHandler {
	t.Helper()
	site := newTestSite(t)
	return &HTTPHandler{Site: site, Handler: NewHandler(site)}
}

func TestHTTPHandlerMapsSuccessWithContentLength(t *testing.T) {
	h := newTestHTTPHandler(t)
	_, err := h.Site.Store.WritePage("", "Welcome", "hello\n", "0001")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/page/Welcome", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, strconv.Itoa(rec.Body.Len()), rec.Header().Get("Content-Length"))
}

func TestHTTPHandlerMapsNotFound(t *testing.T) {
	h := newTestHTTPHandler(t)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/page/Missing", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPHandlerMapsGeminiRedirectToFound(t *testing.T) {
	site := newTestSite(t)
	redirector := gemini.HandlerFunc(func(w gemini.ResponseWriter, r *gemini.Request) {
		w.WriteHeader(gemini.StatusRedirectTemporary, "/page/Elsewhere")
	})
	h := &HTTPHandler{Site: site, Handler: redirector}

	req := httptest.NewRequest(http.MethodGet, "http://example.com/page/Anything", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/page/Elsewhere", rec.Header().Get("Location"))
}

func TestHTTPHandlerRejectsPost(t *testing.T) {
	h := newTestHTTPHandler(t)

	req := httptest.NewRequest(http.MethodPost, "http://example.com/page/Welcome", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHTTPHandlerServesDefaultCSSWithContentLength(t *testing.T) {
	h := newTestHTTPHandler(t)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/default.css", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "text/css; charset=UTF-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, strconv.Itoa(len(defaultCSS)), rec.Header().Get("Content-Length"))
}
