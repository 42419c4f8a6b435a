package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/proanbud/proanbud-api/internal/config"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrUnknownKey   = errors.New("signing key not found")
)

// maxSubjectLength is the longest uid Firebase issues
const maxSubjectLength = 128

// KeySource returns the RSA public keys that sign ID tokens, by key id
type KeySource interface {
	Keys(ctx context.Context) (map[string]*rsa.PublicKey, error)
}

// JWTValidator verifies Firebase ID tokens
type JWTValidator struct {
	projectID string
	issuer    string
	source    KeySource
	ttl       time.Duration
	now       func() time.Time

	mu         sync.Mutex
	publicKeys map[string]*rsa.PublicKey
	lastUpdate time.Time
}

// NewJWTValidator creates a validator that fetches keys from the configured JWKS endpoint
func NewJWTValidator(cfg *config.FirebaseConfig) *JWTValidator {
	return NewJWTValidatorWithSource(cfg, NewJWKSSource(cfg.JWKSURL, nil))
}

// NewJWTValidatorWithSource creates a validator backed by source
func NewJWTValidatorWithSource(cfg *config.FirebaseConfig, source KeySource) *JWTValidator {
	ttl := cfg.KeyCacheTTLDuration()
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWTValidator{
		projectID:  cfg.ProjectID,
		issuer:     cfg.Issuer(),
		source:     source,
		ttl:        ttl,
		now:        time.Now,
		publicKeys: make(map[string]*rsa.PublicKey),
	}
}

// ValidateToken verifies signature, issuer, audience and expiry and returns the account
func (v *JWTValidator) ValidateToken(ctx context.Context, tokenString string) (*Account, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	kid, ok := token.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, fmt.Errorf("%w: missing kid in header", ErrInvalidToken)
	}

	publicKey, err := v.getPublicKey(ctx, kid)
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)
	claims := jwt.MapClaims{}
	parsed, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return publicKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	sub, _ := claims.GetSubject()
	if sub == "" || len(sub) > maxSubjectLength {
		return nil, fmt.Errorf("%w: invalid subject", ErrInvalidToken)
	}

	verified, _ := claims["email_verified"].(bool)
	return &Account{
		AccountID:     sub,
		Email:         strings.ToLower(extractString(claims, "email")),
		DisplayName:   extractString(claims, "name"),
		EmailVerified: verified,
		Method:        MethodIDToken,
	}, nil
}

func (v *JWTValidator) getPublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if key, exists := v.publicKeys[kid]; exists && v.now().Sub(v.lastUpdate) < v.ttl {
		return key, nil
	}

	keys, err := v.source.Keys(ctx)
	if err != nil {
		return nil, err
	}
	v.publicKeys = keys
	v.lastUpdate = v.now()

	key, exists := v.publicKeys[kid]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, kid)
	}
	return key, nil
}

// JWKSSource fetches keys from a JSON Web Key Set endpoint
type JWKSSource struct {
	url    string
	client *http.Client
}

// NewJWKSSource creates a key source for url. A nil client uses a 10 second timeout.
func NewJWKSSource(url string, client *http.Client) *JWKSSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &JWKSSource{url: url, client: client}
}

// Keys fetches and decodes the key set
func (s *JWKSSource) Keys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build JWKS request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
			Kty string `json:"kty"`
			Use string `json:"use"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, key := range jwks.Keys {
		if key.Kty != "RSA" || (key.Use != "" && key.Use != "sig") {
			continue
		}
		nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
		if err != nil {
			continue
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
		if err != nil {
			continue
		}
		e := 0
		for _, b := range eBytes {
			e = e<<8 + int(b)
		}
		keys[key.Kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}
	}
	if len(keys) == 0 {
		return nil, errors.New("JWKS contained no usable RSA keys")
	}
	return keys, nil
}

func extractString(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if val, ok := claims[key]; ok {
			if str, ok := val.(string); ok && str != "" {
				return str
			}
		}
	}
	return ""
}
