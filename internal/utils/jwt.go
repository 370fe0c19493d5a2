package utils // package utils provides helper functions for token creation and hashing

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA-256 hashing for stored token digests
	"encoding/hex"  // hex encoding and decoding functions
	"errors"        // sentinel verification errors
	"strconv"       // user IDs travel as decimal strings in the sub claim
	"time"          // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
	"github.com/google/uuid"       // unique jti per issued token
)

// Verification failures.  Both are reported to clients as a single
// unauthenticated outcome; the distinction only drives the message text.
var (
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenExpired   = errors.New("token expired")
)

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp as a time.Time.  Access tokens are short-lived and encoded
// in the Authorization header when calling protected endpoints.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// Claims are the application claims carried by an access token.
type Claims struct {
	UserID    uint64
	Role      string
	ID        string // jti
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// tokenClaims is the wire form: standard registered claims plus role.
type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 access tokens.  Verification is
// stateless: it never consults sessions or the revocation registry.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer returns an issuer signing with secret and issuing tokens
// that live for ttl.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock replaces the issuer's clock; used by tests to move time.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	t.now = now
	return t
}

// TTL returns the lifetime of issued tokens.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

// Issue builds and signs an HS256 JWT for a user.  The JWT includes the
// subject (sub), role, expiration (exp), issued at (iat) and a random jti
// so two tokens issued within the same second never collide.
func (t *TokenIssuer) Issue(userID uint64, role string) (AccessToken, error) {
	now := t.now().UTC()
	exp := now.Add(t.ttl)
	claims := tokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	// Create a new token object specifying the signing method (HS256) and
	// include the claims, then sign it with the shared secret.
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp.Truncate(time.Second)}, nil
}

// Verify parses raw, checks its signature and expiry and returns the
// decoded claims.  It returns ErrTokenExpired once the clock has passed
// exp and ErrTokenMalformed for any other parse or signature failure.
func (t *TokenIssuer) Verify(raw string) (Claims, error) {
	var tc tokenClaims
	tok, err := jwt.ParseWithClaims(raw, &tc, func(tok *jwt.Token) (interface{}, error) {
		// Type assert the signing method to HMAC; reject others.
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenMalformed
		}
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenMalformed
	}
	if !tok.Valid {
		return Claims{}, ErrTokenMalformed
	}
	uid, err := strconv.ParseUint(tc.Subject, 10, 64)
	if err != nil || uid == 0 {
		return Claims{}, ErrTokenMalformed
	}
	out := Claims{UserID: uid, Role: tc.Role, ID: tc.ID}
	if tc.IssuedAt != nil {
		out.IssuedAt = tc.IssuedAt.Time.UTC()
	}
	if tc.ExpiresAt != nil {
		out.ExpiresAt = tc.ExpiresAt.Time.UTC()
	}
	return out, nil
}

// ExpiryOf returns the exp claim of raw without verifying the signature.
// It is used when revoking tokens to size the revocation TTL; ok is false
// when the token cannot be decoded.
func ExpiryOf(raw string) (exp time.Time, ok bool) {
	var tc tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &tc); err != nil || tc.ExpiresAt == nil {
		return time.Time{}, false
	}
	return tc.ExpiresAt.Time.UTC(), true
}

// HashToken returns the SHA-256 hash of a raw token as a hex string.
// Storing only the hash prevents leaked rows or cache keys from being
// replayed as credentials.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// RandomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.  It is used to produce password
// reset tokens.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
