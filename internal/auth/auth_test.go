package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorizeGlobalToken(t *testing.T) {
	tokens := Tokens{Global: []string{DefaultToken}}
	assert.True(t, tokens.Authorize("", DefaultToken, ""))
	assert.False(t, tokens.Authorize("", "wrong", ""))
}

func TestAuthorizePerSpaceToken(t *testing.T) {
	tokens := Tokens{
		Global:   []string{DefaultToken},
		PerSpace: map[string][]string{"blog": {"blogsecret"}},
	}
	assert.True(t, tokens.Authorize("blog", "blogsecret", ""))
	assert.False(t, tokens.Authorize("other", "blogsecret", ""))
	assert.True(t, tokens.Authorize("blog", DefaultToken, ""))
}

type stubFingerprintAuthorizer struct{ ok bool }

func (s stubFingerprintAuthorizer) AuthorizeFingerprint(space, fingerprint string) bool {
	return s.ok
}

func TestAuthorizeByFingerprintExtension(t *testing.T) {
	tokens := Tokens{Extension: stubFingerprintAuthorizer{ok: true}}
	assert.True(t, tokens.Authorize("", "", "aa:bb:cc"))

	tokens.Extension = stubFingerprintAuthorizer{ok: false}
	assert.False(t, tokens.Authorize("", "", "aa:bb:cc"))
}
