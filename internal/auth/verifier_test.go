package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/volume-sync/vsc/internal/config"
)

const testSecret = "test-secret-key"

func signHS256(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func hs256Verifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(config.AuthConfig{Algorithm: "HS256", SecretKey: testSecret})
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	return v
}

func TestVerifyHS256Token(t *testing.T) {
	v := hs256Verifier(t)

	token := signHS256(t, jwt.MapClaims{
		"sub":    "operator-1",
		"scopes": []string{ScopeRead, ScopeControl},
		"exp":    time.Now().Add(time.Hour).Unix(),
	})

	claims, err := v.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if claims.Subject != "operator-1" {
		t.Errorf("Subject = %q", claims.Subject)
	}
	if !claims.HasScope(ScopeRead) || !claims.HasScope(ScopeControl) {
		t.Errorf("Scopes = %v", claims.Scopes)
	}
	if claims.HasScope(ScopeTelemetry) {
		t.Error("unexpected telemetry scope")
	}
}

func TestVerifyTokenRejections(t *testing.T) {
	v := hs256Verifier(t)

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"garbage", "not.a.token"},
		{"wrong secret", func() string {
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
				"sub": "x", "scopes": []string{ScopeRead},
			})
			signed, _ := token.SignedString([]byte("other-secret"))
			return signed
		}()},
		{"expired", signHS256(t, jwt.MapClaims{
			"sub":    "x",
			"scopes": []string{ScopeRead},
			"exp":    time.Now().Add(-time.Hour).Unix(),
		})},
		{"missing sub", signHS256(t, jwt.MapClaims{
			"scopes": []string{ScopeRead},
		})},
		{"missing scopes", signHS256(t, jwt.MapClaims{
			"sub": "x",
		})},
		{"empty scopes", signHS256(t, jwt.MapClaims{
			"sub": "x", "scopes": []string{},
		})},
		{"unknown scope", signHS256(t, jwt.MapClaims{
			"sub": "x", "scopes": []string{"admin"},
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.VerifyToken(tt.token); err == nil {
				t.Error("expected verification failure")
			}
		})
	}
}

func TestVerifyRS256Token(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("failed to marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	v, err := NewVerifier(config.AuthConfig{Algorithm: "RS256", PublicKeyPEM: string(pubPEM)})
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub":    "operator-2",
		"scopes": []string{ScopeTelemetry},
	})
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	claims, err := v.VerifyToken(signed)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if claims.Subject != "operator-2" {
		t.Errorf("Subject = %q", claims.Subject)
	}

	// HS256 tokens must be rejected by an RS256 verifier.
	hsToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "x", "scopes": []string{ScopeRead},
	})
	hsSigned, _ := hsToken.SignedString([]byte("secret"))
	if _, err := v.VerifyToken(hsSigned); err == nil {
		t.Error("expected algorithm mismatch rejection")
	}
}

func TestNewVerifierConfigErrors(t *testing.T) {
	if _, err := NewVerifier(config.AuthConfig{Algorithm: "HS256"}); err == nil {
		t.Error("expected error for missing secret")
	}
	if _, err := NewVerifier(config.AuthConfig{Algorithm: "RS256", PublicKeyPEM: "junk"}); err == nil {
		t.Error("expected error for bad PEM")
	}
	if _, err := NewVerifier(config.AuthConfig{Algorithm: "ES384"}); err == nil {
		t.Error("expected error for unsupported algorithm")
	}
}
