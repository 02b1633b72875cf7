package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashToken returns the hex-encoded SHA-256 of a token code. Sessions store only this value.
func HashToken(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// TokenHashEqual compares the hash of code with storedHash in constant time.
func TokenHashEqual(code, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(code)), []byte(storedHash)) == 1
}
