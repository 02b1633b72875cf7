package security

import "time"

// TestSecret is the HS256 secret used by NewTestTokenCodec. For unit tests only.
const TestSecret = "test-secret-for-unit-tests-only-0123456789"

// NewTestTokenCodec returns a TokenCodec with the test secret and issuer "test-issuer".
// If now is non-nil the codec reads time from it. Callers must not use in production.
func NewTestTokenCodec(now func() time.Time) *TokenCodec {
	c, err := NewTokenCodec([]byte(TestSecret), "test-issuer")
	if err != nil {
		panic(err)
	}
	if now != nil {
		c = c.WithClock(now)
	}
	return c
}
