package security

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned for every verification failure (malformed, bad signature, expired, wrong issuer).
	// Callers must not try to tell those causes apart.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWeakSecret is returned by NewTokenCodec when the signing secret is empty.
	ErrWeakSecret = errors.New("token signing secret must not be empty")
)

// Claims is the signed payload: sub, name, role, iat, exp plus iss and jti.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name"`
	Role string `json:"role"`
}

// Token is a signed token and its validity window.
type Token struct {
	Code      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ExpiresIn returns the token lifetime in whole seconds.
func (t Token) ExpiresIn() int64 {
	return int64(t.ExpiresAt.Sub(t.IssuedAt) / time.Second)
}

// Payload is the verified content of a token.
type Payload struct {
	SubjectID int64
	Name      string
	Role      string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenCodec mints and verifies HS256 tokens with a process-wide secret.
type TokenCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenCodec returns a TokenCodec signing with secret. issuer is written to and required on every token.
func NewTokenCodec(secret []byte, issuer string) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, ErrWeakSecret
	}
	return &TokenCodec{secret: secret, issuer: issuer, now: time.Now}, nil
}

// WithClock returns a copy of c that reads the current time from now. Used by tests.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	cp := *c
	cp.now = now
	return &cp
}

// Mint signs a token for the subject valid from now for ttl. Timestamps are truncated to seconds
// because that is the precision of the iat and exp claims.
func (c *TokenCodec) Mint(subjectID int64, name, role string, ttl time.Duration) (Token, error) {
	issuedAt := c.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(subjectID, 10),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Name: name,
		Role: role,
	}
	code, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return Token{}, err
	}
	return Token{Code: code, IssuedAt: issuedAt, ExpiresAt: expiresAt}, nil
}

// Verify checks signature, algorithm, issuer and expiry. Any failure returns ErrInvalidToken.
func (c *TokenCodec) Verify(code string) (*Payload, error) {
	token, err := jwt.ParseWithClaims(code, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	sub, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || sub <= 0 {
		return nil, ErrInvalidToken
	}
	p := &Payload{
		SubjectID: sub,
		Name:      claims.Name,
		Role:      claims.Role,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	return p, nil
}
