package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func parseHS256(t *testing.T, token, secret string) jwt.MapClaims {
	t.Helper()
	parsed, err := jwt.Parse(token, func(tk *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		t.Fatalf("unexpected claims type %T", parsed.Claims)
	}
	return claims
}

func TestEncodeConferenceTokenClaims(t *testing.T) {
	token, err := EncodeConferenceToken("svc-1", "key-1", "user-1", "room-1", "secret-1")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	claims := parseHS256(t, token, "secret-1")
	if claims["sub"] != "svc-1" || claims["uid"] != "user-1" || claims["iss"] != "key-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, ok := claims["iat"]; !ok {
		t.Fatalf("expected iat claim")
	}

	// The provider rejects oversized tokens; exp and room must stay out.
	if _, ok := claims["exp"]; ok {
		t.Fatalf("exp must not be present")
	}
	if _, ok := claims["room"]; ok {
		t.Fatalf("room must not be present")
	}
	if len(claims) != 4 {
		t.Fatalf("expected exactly 4 claims, got %d: %+v", len(claims), claims)
	}
}

func TestEncodeConferenceTokenFallsBackToAPIKey(t *testing.T) {
	token, err := EncodeConferenceToken("svc-1", "key-1", "user-1", "room-1", "")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// Must verify against the API key when no secret is configured.
	parseHS256(t, token, "key-1")
}

func TestBuildChannelAssertion(t *testing.T) {
	// Parsing validates exp, so the assertion has to be issued "now".
	now := time.Now().Truncate(time.Second)
	assertion, err := BuildChannelAssertion("ch-1", "ch-secret", "https://example.test/token", now)
	if err != nil {
		t.Fatalf("assertion: %v", err)
	}

	claims := parseHS256(t, assertion, "ch-secret")
	if claims["iss"] != "ch-1" || claims["sub"] != "ch-1" {
		t.Fatalf("unexpected issuer/subject: %+v", claims)
	}
	aud, err := claims.GetAudience()
	if err != nil || len(aud) != 1 || aud[0] != "https://example.test/token" {
		t.Fatalf("unexpected audience: %v (%v)", aud, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		t.Fatalf("exp: %v", err)
	}
	if got := exp.Time.Sub(now); got != 30*time.Minute {
		t.Fatalf("expected 30m validity, got %v", got)
	}
}
