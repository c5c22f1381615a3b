// Package pkce generates the RFC 7636 proof key and the CSRF state value of
// an authorization request.
package pkce

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/oauth2"
)

const (
	// VerifierLength is the verifier size; RFC 7636 allows 43 to 128.
	VerifierLength = 128

	// MethodS256 is the only challenge method this client sends.
	MethodS256 = "S256"

	unreserved = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"
	stateBytes = 32
)

// GenerateCodeVerifier returns VerifierLength characters drawn uniformly from
// the unreserved alphabet [A-Za-z0-9-._~].
func GenerateCodeVerifier() string {
	// 66 symbols: reject bytes >= 198 (3*66) so every symbol is equally likely.
	const limit = 256 - 256%len(unreserved)

	out := make([]byte, 0, VerifierLength)
	buf := make([]byte, VerifierLength)
	for len(out) < VerifierLength {
		fill(buf)
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, unreserved[int(b)%len(unreserved)])
			if len(out) == VerifierLength {
				break
			}
		}
	}
	return string(out)
}

// GenerateCodeChallenge returns base64url(SHA-256(verifier)) without padding.
func GenerateCodeChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// GenerateState returns 32 random bytes, base64url-encoded without padding.
func GenerateState() string {
	b := make([]byte, stateBytes)
	fill(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// fill reads b from crypto/rand, which never returns an error as of Go 1.24.
func fill(b []byte) {
	_, _ = rand.Read(b)
}
