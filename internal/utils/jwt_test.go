package utils

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueVerify_RoundTrip(t *testing.T) {
	iss := NewTokenIssuer("s3cret", time.Hour)
	tok, err := iss.Issue(42, "gso_staff")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if tok.Token == "" || tok.Exp.IsZero() {
		t.Fatalf("token = %+v", tok)
	}
	c, err := iss.Verify(tok.Token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if c.UserID != 42 || c.Role != "gso_staff" || c.ID == "" {
		t.Errorf("claims = %+v", c)
	}
	if !c.ExpiresAt.Equal(tok.Exp) {
		t.Errorf("exp = %v, want %v", c.ExpiresAt, tok.Exp)
	}

	other, _ := iss.Issue(42, "gso_staff")
	if other.Token == tok.Token {
		t.Error("two tokens issued back to back must differ")
	}
}

func TestVerify_ExpiredAfterClockPassesExp(t *testing.T) {
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	iss := NewTokenIssuer("s3cret", time.Hour).WithClock(func() time.Time { return now })
	tok, err := iss.Issue(1, "admin")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	now = now.Add(59 * time.Minute)
	if _, err := iss.Verify(tok.Token); err != nil {
		t.Fatalf("before exp: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := iss.Verify(tok.Token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("after exp err = %v, want ErrTokenExpired", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	iss := NewTokenIssuer("s3cret", time.Hour)
	good, _ := iss.Issue(1, "admin")
	foreign, _ := NewTokenIssuer("other", time.Hour).Issue(1, "admin")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1", "exp": time.Now().Add(time.Hour).Unix()})
	noneTok, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	hs512 := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"sub": "1", "exp": time.Now().Add(time.Hour).Unix()})
	hs512Tok, _ := hs512.SignedString([]byte("s3cret"))

	badSub := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "abc", "exp": time.Now().Add(time.Hour).Unix()})
	badSubTok, _ := badSub.SignedString([]byte("s3cret"))

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1"})
	noExpTok, _ := noExp.SignedString([]byte("s3cret"))

	tests := map[string]string{
		"garbage":       "not-a-jwt",
		"wrong secret":  foreign.Token,
		"alg none":      noneTok,
		"hs512":         hs512Tok,
		"non numeric":   badSubTok,
		"missing exp":   noExpTok,
		"bad signature": good.Token[:strings.LastIndex(good.Token, ".")] + ".AAAA",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := iss.Verify(raw); !errors.Is(err, ErrTokenMalformed) {
				t.Errorf("err = %v, want ErrTokenMalformed", err)
			}
		})
	}
}

func TestExpiryOf(t *testing.T) {
	iss := NewTokenIssuer("s3cret", 30*time.Minute)
	tok, _ := iss.Issue(9, "department_rep")
	exp, ok := ExpiryOf(tok.Token)
	if !ok || !exp.Equal(tok.Exp) {
		t.Errorf("ExpiryOf = %v, %v; want %v", exp, ok, tok.Exp)
	}
	if _, ok := ExpiryOf("garbage"); ok {
		t.Error("garbage should not decode")
	}
}

func TestHashTokenAndRandomHex(t *testing.T) {
	if HashToken("abc") != HashToken("abc") || len(HashToken("abc")) != 64 {
		t.Error("HashToken must be a stable sha256 hex digest")
	}
	a, err := RandomHex(32)
	if err != nil {
		t.Fatalf("RandomHex: %v", err)
	}
	b, _ := RandomHex(32)
	if len(a) != 64 || a == b {
		t.Errorf("RandomHex = %q, %q", a, b)
	}
}
