package gemtext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClassification(t *testing.T) {
	text := "# Title\n" +
		"## Subtitle\n" +
		"### Small\n" +
		"=> gemini://example.org/foo a link\n" +
		"=> /bare\n" +
		"* item one\n" +
		"> a quote\n" +
		"a paragraph\n"

	lines := Parse(text)
	require.Len(t, lines, 8)
	assert.Equal(t, KindHeading1, lines[0].Kind)
	assert.Equal(t, "Title", lines[0].Text)
	assert.Equal(t, KindHeading2, lines[1].Kind)
	assert.Equal(t, KindHeading3, lines[2].Kind)
	assert.Equal(t, KindLink, lines[3].Kind)
	assert.Equal(t, "gemini://example.org/foo", lines[3].URL)
	assert.Equal(t, "a link", lines[3].Text)
	assert.Equal(t, KindLink, lines[4].Kind)
	assert.Equal(t, "/bare", lines[4].URL)
	assert.Equal(t, "", lines[4].Text)
	assert.Equal(t, KindListItem, lines[5].Kind)
	assert.Equal(t, KindBlockquote, lines[6].Kind)
}

func TestParsePreformattedSuspendsClassification(t *testing.T) {
	text := "```\n# not a heading\n=> not a link\n```\nafter\n"
	lines := Parse(text)
	require.Len(t, lines, 5)
	assert.Equal(t, KindPreformattedToggle, lines[0].Kind)
	assert.Equal(t, KindPreformattedText, lines[1].Kind)
	assert.Equal(t, "# not a heading", lines[1].Text)
	assert.Equal(t, KindPreformattedText, lines[2].Kind)
	assert.Equal(t, KindPreformattedToggle, lines[3].Kind)
	assert.Equal(t, KindParagraph, lines[4].Kind)
}

func TestRenderGeminiRoundTrip(t *testing.T) {
	text := "# Title\n=> /x label\n* item\n> quote\nparagraph\n"
	lines := Parse(text)
	assert.Equal(t, text, RenderGemini(lines))
}

func TestRenderHTMLEscapesAndRewritesLinks(t *testing.T) {
	text := "# Hi <script>\n=> other page\n"
	lines := Parse(text)
	out := RenderHTML(lines, DefaultLinkRewriter("myspace"))
	assert.Contains(t, out, "<h1>Hi &lt;script&gt;</h1>")
	assert.Contains(t, out, `href="/myspace/page/other"`)
}

func TestRenderHTMLPreformattedBlock(t *testing.T) {
	text := "```\ncode & stuff\n```\n"
	lines := Parse(text)
	out := RenderHTML(lines, nil)
	assert.Contains(t, out, "<pre>\ncode &amp; stuff\n</pre>")
}
