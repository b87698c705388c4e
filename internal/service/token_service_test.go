package service

import (
	"strings"
	"testing"
	"time"

	"github.com/tasknest-next/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

func newTokenTestService(secret string) *TokenService {
	return NewTokenService(&config.Config{
		JWT: config.JWTConfig{
			SecretKey:           secret,
			AccessExpireMinutes: 15,
			RefreshExpireHours:  24,
		},
	})
}

func TestGenerateTokenPairRoundTrip(t *testing.T) {
	svc := newTokenTestService("token-test-secret")

	pair, err := svc.GenerateTokenPair(42, "user@example.com", 7, "family-abc", 3)
	if err != nil {
		t.Fatalf("generate token pair failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("token pair should not be empty")
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}

	access, err := svc.VerifyAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("verify access token failed: %v", err)
	}
	if access.UserID != 42 || access.Email != "user@example.com" || access.SessionID != 7 {
		t.Fatalf("unexpected access claims: %+v", access)
	}

	refresh, err := svc.VerifyRefreshToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("verify refresh token failed: %v", err)
	}
	if refresh.UserID != 42 || refresh.SessionID != 7 {
		t.Fatalf("unexpected refresh claims: %+v", refresh)
	}
	if refresh.TokenFamily != "family-abc" || refresh.TokenVersion != 3 {
		t.Fatalf("refresh claims family/version want family-abc/3 got %s/%d", refresh.TokenFamily, refresh.TokenVersion)
	}

	if !pair.AccessExpiresAt.After(time.Now()) || !pair.RefreshExpiresAt.After(pair.AccessExpiresAt) {
		t.Fatalf("unexpected expiry ordering: access=%v refresh=%v", pair.AccessExpiresAt, pair.RefreshExpiresAt)
	}
}

func TestVerifyTokenRejectsWrongType(t *testing.T) {
	svc := newTokenTestService("token-test-secret")
	pair, err := svc.GenerateTokenPair(1, "user@example.com", 2, "family-x", 1)
	if err != nil {
		t.Fatalf("generate token pair failed: %v", err)
	}

	// 刷新令牌不能当访问令牌用，反之亦然
	if _, err := svc.VerifyAccessToken(pair.RefreshToken); err == nil {
		t.Fatal("refresh token must not pass access verification")
	}
	if _, err := svc.VerifyRefreshToken(pair.AccessToken); err == nil {
		t.Fatal("access token must not pass refresh verification")
	}
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	issuer := newTokenTestService("secret-a")
	verifier := newTokenTestService("secret-b")

	pair, err := issuer.GenerateTokenPair(1, "user@example.com", 2, "family-x", 1)
	if err != nil {
		t.Fatalf("generate token pair failed: %v", err)
	}

	if _, err := verifier.VerifyAccessToken(pair.AccessToken); err == nil {
		t.Fatal("token signed with another secret must be rejected")
	}
	if _, err := verifier.VerifyRefreshToken(pair.RefreshToken); err == nil {
		t.Fatal("refresh token signed with another secret must be rejected")
	}
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	svc := newTokenTestService("token-test-secret")

	past := time.Now().Add(-time.Hour)
	claims := AccessClaims{
		UserID:    1,
		Email:     "user@example.com",
		SessionID: 2,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(past),
			IssuedAt:  jwt.NewNumericDate(past.Add(-time.Minute)),
		},
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("token-test-secret"))
	if err != nil {
		t.Fatalf("sign expired token failed: %v", err)
	}

	if _, err := svc.VerifyAccessToken(expired); err == nil {
		t.Fatal("expired token must be rejected")
	}
}

func TestVerifyTokenRejectsTampered(t *testing.T) {
	svc := newTokenTestService("token-test-secret")
	pair, err := svc.GenerateTokenPair(1, "user@example.com", 2, "family-x", 1)
	if err != nil {
		t.Fatalf("generate token pair failed: %v", err)
	}

	parts := strings.Split(pair.AccessToken, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %s", pair.AccessToken)
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := svc.VerifyAccessToken(tampered); err == nil {
		t.Fatal("tampered signature must be rejected")
	}
}

func TestHashRefreshTokenDeterministic(t *testing.T) {
	svc := newTokenTestService("token-test-secret")

	first := svc.HashRefreshToken("refresh-token-sample")
	second := svc.HashRefreshToken("refresh-token-sample")
	other := svc.HashRefreshToken("refresh-token-other")

	if first != second {
		t.Fatal("same token must hash to the same value")
	}
	if first == other {
		t.Fatal("different tokens must hash differently")
	}
	if len(first) != 64 {
		t.Fatalf("sha256 hex length want 64 got %d", len(first))
	}
}

func TestTokenTTLDefaults(t *testing.T) {
	svc := NewTokenService(&config.Config{JWT: config.JWTConfig{SecretKey: "s"}})

	if got := svc.AccessTokenTTL(); got != 15*time.Minute {
		t.Fatalf("default access ttl want 15m got %v", got)
	}
	if got := svc.RefreshTokenTTL(); got != 14*24*time.Hour {
		t.Fatalf("default refresh ttl want 336h got %v", got)
	}

	family := svc.GenerateTokenFamily()
	if family == "" || family == svc.GenerateTokenFamily() {
		t.Fatal("token families must be non-empty and unique")
	}
}
