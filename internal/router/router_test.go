package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kensanata/gemini-wiki/internal/config"
)

func TestResolveRootSpaceWhenNoSegmentMatches(t *testing.T) {
	cfg := &config.Config{}
	got := Resolve(cfg, "example.com", "/page/Welcome")
	assert.Equal(t, Resolved{Host: "example.com", Space: "", Path: "/page/Welcome"}, got)
}

func TestResolveNamedSpaceConsumesSegment(t *testing.T) {
	cfg := &config.Config{Spaces: []config.SpaceConfig{{Name: "blog"}}}
	got := Resolve(cfg, "example.com", "/blog/page/Welcome")
	assert.Equal(t, Resolved{Host: "example.com", Space: "blog", Path: "/page/Welcome"}, got)
}

func TestResolveNamedSpaceRoot(t *testing.T) {
	cfg := &config.Config{Spaces: []config.SpaceConfig{{Name: "blog"}}}
	got := Resolve(cfg, "example.com", "/blog")
	assert.Equal(t, Resolved{Host: "example.com", Space: "blog", Path: "/"}, got)
}

func TestResolveHostScopedSpaceDoesNotLeak(t *testing.T) {
	cfg := &config.Config{Spaces: []config.SpaceConfig{{Host: "one.example", Name: "private"}}}

	got := Resolve(cfg, "one.example", "/private/page/Secret")
	assert.Equal(t, "private", got.Space)

	got = Resolve(cfg, "two.example", "/private/page/Secret")
	assert.Equal(t, "", got.Space)
	assert.Equal(t, "/private/page/Secret", got.Path)
}

func TestNormalizeHostStripsPortAndCase(t *testing.T) {
	assert.Equal(t, "example.com", NormalizeHost("Example.Com:1965"))
	assert.Equal(t, "example.com", NormalizeHost("example.com"))
}

func TestHostKnown(t *testing.T) {
	cfg := &config.Config{}
	assert.True(t, HostKnown(cfg, "anything"))

	cfg.Hosts = []config.HostConfig{{Name: "example.com"}}
	assert.True(t, HostKnown(cfg, "Example.Com"))
	assert.False(t, HostKnown(cfg, "other.com"))
}
