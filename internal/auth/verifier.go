package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/volume-sync/vsc/internal/config"
)

// Scope constants.
const (
	ScopeRead      = "read"
	ScopeControl   = "control"
	ScopeTelemetry = "telemetry"
)

// Claims represents the parsed token claims.
type Claims struct {
	Subject string   `json:"sub"`
	Scopes  []string `json:"scopes"`
}

// HasScope reports whether the claims carry the given scope.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Verifier verifies JWT bearer tokens with HS256 or RS256.
type Verifier struct {
	algorithm string
	secretKey []byte
	publicKey *rsa.PublicKey
}

// NewVerifier creates a verifier from the auth configuration.
func NewVerifier(cfg config.AuthConfig) (*Verifier, error) {
	v := &Verifier{algorithm: cfg.Algorithm}

	switch cfg.Algorithm {
	case "HS256":
		if cfg.SecretKey == "" {
			return nil, fmt.Errorf("HS256 requires a secret key")
		}
		v.secretKey = []byte(cfg.SecretKey)
	case "RS256":
		key, err := parsePublicKeyPEM(cfg.PublicKeyPEM)
		if err != nil {
			return nil, err
		}
		v.publicKey = key
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", cfg.Algorithm)
	}

	return v, nil
}

// VerifyToken verifies a JWT token string and returns its claims.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("token cannot be empty")
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != v.algorithm {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		if v.algorithm == "HS256" {
			return v.secretKey, nil
		}
		return v.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	return extractClaims(claims)
}

// extractClaims pulls subject and scopes out of the raw claim map.
func extractClaims(claims *jwt.MapClaims) (*Claims, error) {
	sub, ok := (*claims)["sub"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'sub' claim")
	}

	raw, ok := (*claims)["scopes"]
	if !ok {
		return nil, fmt.Errorf("missing 'scopes' claim")
	}

	var scopes []string
	switch val := raw.(type) {
	case []string:
		scopes = val
	case []interface{}:
		scopes = make([]string, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("invalid 'scopes' claim: not a string")
			}
			scopes[i] = s
		}
	default:
		return nil, fmt.Errorf("invalid 'scopes' claim: not a string array")
	}

	valid := map[string]bool{ScopeRead: true, ScopeControl: true, ScopeTelemetry: true}
	for _, s := range scopes {
		if !valid[s] {
			return nil, fmt.Errorf("invalid scope: %s", s)
		}
	}
	if len(scopes) == 0 {
		return nil, fmt.Errorf("empty 'scopes' claim")
	}

	return &Claims{Subject: sub, Scopes: scopes}, nil
}

func parsePublicKeyPEM(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return rsaPub, nil
}
