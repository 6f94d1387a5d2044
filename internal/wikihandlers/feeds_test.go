package wikihandlers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kensanata/gemini-wiki/internal/store"
)

func TestGuidFormat(t *testing.T) {
	ts := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	got := guid("example.com", ts, "docs", "Welcome", 3)
	assert.Equal(t, "tag:example.com,2026-03-04:docs/Welcome?rev=3", got)
}

func TestGuidOmitsSpaceSegmentForRootSpace(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := guid("example.com", ts, "", "Welcome", 1)
	assert.Equal(t, "tag:example.com,2026-01-01:/Welcome?rev=1", got)
}

func TestRenderRSSIncludesEntryGUIDs(t *testing.T) {
	entries := []store.ChangeEntry{
		{Name: "Welcome", Revision: 1, Timestamp: time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC), Code: "0001"},
	}
	out := renderRSS("example.com", "", entries)

	assert.Contains(t, out, "<rss version=\"2.0\">")
	assert.Contains(t, out, "<title>Welcome</title>")
	assert.Contains(t, out, guid("example.com", entries[0].Timestamp, "", "Welcome", 1))
}

func TestRenderAtomMultiLabelsEntriesBySpace(t *testing.T) {
	entries := []store.ChangeEntry{
		{Name: "Welcome", Revision: 1, Timestamp: time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)},
	}
	out := renderAtomMulti("example.com", entries, map[int]string{0: "docs"})

	assert.Contains(t, out, "<title>docs/Welcome</title>")
}

func TestFeedTitleUsesHostAloneForRootSpace(t *testing.T) {
	assert.Equal(t, "example.com", feedTitle("example.com", ""))
	assert.Equal(t, "example.com/docs", feedTitle("example.com", "docs"))
}
