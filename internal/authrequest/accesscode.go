package authrequest

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
)

const accessCodeBytes = 24

// GenerateAccessCode mints a URL-safe access code for a new auth request.
// Clients normally generate the code themselves; this covers callers that
// leave it to the server.
func GenerateAccessCode() (string, error) {
	buf := make([]byte, accessCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CodeMatches reports whether candidate equals the stored access code.
// The comparison is case-sensitive and byte-exact and runs in constant time
// for equal-length inputs. Differing lengths short-circuit, which leaks only
// the code length, never its content.
func CodeMatches(stored, candidate string) bool {
	if len(stored) != len(candidate) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}
