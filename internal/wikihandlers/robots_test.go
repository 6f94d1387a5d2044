package wikihandlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kensanata/gemini-wiki/gemini"
	"github.com/kensanata/gemini-wiki/internal/config"
)

func TestServeRobotsPrefersLiteralPage(t *testing.T) {
	site := newTestSite(t)
	_, err := site.Store.WritePage("", "robots", "User-agent: *\nDisallow: /\n", "0001")
	require.NoError(t, err)

	r := &gemini.Request{Path: "/robots.txt"}
	ri := gemini.NewInterceptor(nil)
	site.serveRobots(ri, r)

	assert.Equal(t, "User-agent: *\nDisallow: /\n", ri.Body.String())
}

func TestServeRobotsSynthesizesOneStanzaPerSpace(t *testing.T) {
	site := newTestSite(t)
	require.NoError(t, site.Store.EnsureSpace("docs"))
	site.Cfg = &config.Config{Spaces: []config.SpaceConfig{{Name: "docs"}}}

	r := &gemini.Request{Path: "/robots.txt"}
	ri := gemini.NewInterceptor(nil)
	site.serveRobots(ri, r)

	body := ri.Body.String()
	assert.Equal(t, 2, countOccurrences(body, "User-agent: *"))
	assert.Contains(t, body, "Disallow: /do/changes*")
	assert.Contains(t, body, "Disallow: /docs/do/changes*")
}

func countOccurrences(haystack, needle string) int {
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			count++
		}
	}
	return count
}
