package wikihandlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kensanata/gemini-wiki/gemini"
)

func TestServeHTMLRewritesRelativeLinks(t *testing.T) {
	site := newTestSite(t)
	_, err := site.Store.WritePage("", "Welcome", "# Hi\n=> OtherPage See also\n", "0001")
	require.NoError(t, err)

	r := &gemini.Request{Path: "/html/Welcome"}
	ri := gemini.NewInterceptor(nil)
	site.serveHTML(ri, r, "Welcome")

	assert.Equal(t, gemini.StatusSuccess, ri.Code)
	assert.Equal(t, "text/html; charset=UTF-8", ri.Meta)
	assert.Contains(t, ri.Body.String(), `<a href="/page/OtherPage">See also</a>`)
	assert.Contains(t, ri.Body.String(), "<h1>Hi</h1>")
}

func TestServeHTMLRewritesLinksUnderNamedSpace(t *testing.T) {
	site := newTestSite(t)
	require.NoError(t, site.Store.EnsureSpace("docs"))
	_, err := site.Store.WritePage("docs", "Index", "=> Other Other page\n", "0001")
	require.NoError(t, err)

	r := &gemini.Request{Path: "/html/Index", Space: "docs"}
	ri := gemini.NewInterceptor(nil)
	site.serveHTML(ri, r, "Index")

	assert.Contains(t, ri.Body.String(), `<a href="/docs/page/Other">Other page</a>`)
}

func TestServePageNotFound(t *testing.T) {
	site := newTestSite(t)
	r := &gemini.Request{Path: "/page/Missing"}
	ri := gemini.NewInterceptor(nil)
	site.servePage(ri, r, "Missing")
	assert.Equal(t, gemini.StatusNotFound, ri.Code)
}

func TestServePageShowsFooterLinks(t *testing.T) {
	site := newTestSite(t)
	_, err := site.Store.WritePage("", "Page", "body\n", "0001")
	require.NoError(t, err)

	r := &gemini.Request{Path: "/page/Page"}
	ri := gemini.NewInterceptor(nil)
	site.servePage(ri, r, "Page")

	body := ri.Body.String()
	assert.Contains(t, body, "=> /history/Page History (revision 1)")
	assert.Contains(t, body, "=> /raw/Page Raw text")
	assert.Contains(t, body, "=> /html/Page HTML rendering")
}
