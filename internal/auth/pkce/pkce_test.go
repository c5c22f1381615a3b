package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCodeVerifier_LengthAndAlphabet(t *testing.T) {
	for i := 0; i < 200; i++ {
		v := GenerateCodeVerifier()
		require.Len(t, v, VerifierLength)
		for _, r := range v {
			if !strings.ContainsRune(unreserved, r) {
				t.Fatalf("verifier %q contains %q outside [A-Za-z0-9-._~]", v, r)
			}
		}
	}
}

func TestGenerateCodeVerifier_UsesWholeAlphabet(t *testing.T) {
	seen := make(map[rune]bool)
	for i := 0; i < 100; i++ {
		for _, r := range GenerateCodeVerifier() {
			seen[r] = true
		}
	}
	// 12800 draws over 66 symbols; missing one is astronomically unlikely.
	assert.Len(t, seen, len(unreserved))
}

func TestGenerateCodeChallenge_Deterministic(t *testing.T) {
	v := GenerateCodeVerifier()
	c1 := GenerateCodeChallenge(v)
	c2 := GenerateCodeChallenge(v)
	assert.Equal(t, c1, c2)
	assert.NotContains(t, c1, "+")
	assert.NotContains(t, c1, "/")
	assert.NotContains(t, c1, "=")
	assert.Len(t, c1, 43)
}

func TestGenerateCodeChallenge_RFC7636Vector(t *testing.T) {
	// RFC 7636 Appendix B
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		GenerateCodeChallenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"))
}

func TestGenerateCodeChallenge_MatchesSHA256(t *testing.T) {
	v := "verifier123"
	sum := sha256.Sum256([]byte(v))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), GenerateCodeChallenge(v))
}

func TestGenerateState_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		s := GenerateState()
		if _, dup := seen[s]; dup {
			t.Fatalf("state %q repeated after %d generations", s, i)
		}
		seen[s] = struct{}{}
	}
}

func TestGenerateState_Encoding(t *testing.T) {
	s := GenerateState()
	assert.Len(t, s, 43) // 32 bytes, unpadded base64url
	raw, err := base64.RawURLEncoding.DecodeString(s)
	require.NoError(t, err)
	assert.Len(t, raw, stateBytes)
}
