package titan

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kensanata/gemini-wiki/gemini"
	"github.com/kensanata/gemini-wiki/internal/auth"
	"github.com/kensanata/gemini-wiki/internal/store"
)

type recorder struct {
	code int
	msg  string
	body []byte
}

func (r *recorder) WriteHeader(code int, message string) (int, error) {
	r.code, r.msg = code, message
	return 0, nil
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return len(b), nil
}

func TestParseExtractsParametersInAnyOrder(t *testing.T) {
	req, err := Parse(context.Background(), "titan://example.com/Welcome;size=5;mime=text/plain;token=hello", "1.2.3.4:5555")
	require.NoError(t, err)
	assert.Equal(t, "example.com", req.Host)
	assert.Equal(t, "Welcome", req.Name)
	assert.EqualValues(t, 5, req.Size)
	assert.Equal(t, "text/plain", req.Mime)
	assert.Equal(t, "hello", req.Token)
}

func TestParseRejectsWrongScheme(t *testing.T) {
	_, err := Parse(context.Background(), "gemini://example.com/Welcome", "")
	assert.Error(t, err)
}

func TestIsFilePath(t *testing.T) {
	assert.True(t, IsFilePath("file/jupiter.jpg"))
	assert.False(t, IsFilePath("Welcome"))
}

func newTestOpts(t *testing.T) (Options, *store.Store) {
	t.Helper()
	s := store.New(t.TempDir(), nil)
	require.NoError(t, s.EnsureSpace(""))
	return Options{
		Store:         s,
		Tokens:        auth.Tokens{Global: []string{auth.DefaultToken}},
		PageSizeLimit: 10000,
		AllowedMIME:   []string{"image"},
	}, s
}

func TestServeCommitsPageAndRedirects(t *testing.T) {
	opts, s := newTestOpts(t)
	req := &Request{Host: "example.com", Name: "Welcome", Mime: "text/plain", Size: 5, Token: auth.DefaultToken, RemoteAddr: "1.2.3.4:1"}

	rec := &recorder{}
	Serve(rec, req, strings.NewReader("hello"), opts)

	assert.Equal(t, gemini.StatusRedirectTemporary, rec.code)
	assert.Equal(t, "/page/Welcome", rec.msg)

	text, rev, err := s.ReadPage("", "Welcome")
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, 1, rev)
}

func TestServeRejectsWrongToken(t *testing.T) {
	opts, _ := newTestOpts(t)
	req := &Request{Name: "Welcome", Mime: "text/plain", Size: 5, Token: "nope"}

	rec := &recorder{}
	Serve(rec, req, strings.NewReader("hello"), opts)

	assert.Equal(t, gemini.StatusBadRequest, rec.code)
}

func TestServeRejectsOversizedPayload(t *testing.T) {
	opts, _ := newTestOpts(t)
	opts.PageSizeLimit = 2
	req := &Request{Name: "Welcome", Mime: "text/plain", Size: 5, Token: auth.DefaultToken}

	rec := &recorder{}
	Serve(rec, req, strings.NewReader("hello"), opts)

	assert.Equal(t, gemini.StatusBadRequest, rec.code)
	assert.Contains(t, rec.msg, "does not allow more than")
}

func TestServeRejectsDisallowedMIMEForFile(t *testing.T) {
	opts, _ := newTestOpts(t)
	req := &Request{Name: "file/song.mp3", Mime: "audio/mp3", Size: 3, Token: auth.DefaultToken}

	rec := &recorder{}
	Serve(rec, req, strings.NewReader("abc"), opts)

	assert.Equal(t, gemini.StatusBadRequest, rec.code)
	assert.Contains(t, rec.msg, "does not allow audio/mp3")
}

func TestServeCommitsFileAndRedirects(t *testing.T) {
	opts, s := newTestOpts(t)
	req := &Request{Name: "file/jupiter.jpg", Mime: "image/jpeg", Size: 3, Token: auth.DefaultToken}

	rec := &recorder{}
	Serve(rec, req, strings.NewReader("abc"), opts)

	assert.Equal(t, gemini.StatusRedirectTemporary, rec.code)
	assert.Equal(t, "/file/jupiter.jpg", rec.msg)

	data, mime, err := s.ReadFile("", "jupiter.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)
	assert.Equal(t, "image/jpeg", mime)
}
