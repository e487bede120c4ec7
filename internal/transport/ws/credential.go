package ws

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/plaiground/agentkit/internal/platform/id"
)

// GrantConfig defines how bus access grants are minted and verified.
type GrantConfig struct {
	Issuer   string
	Audience string
	Now      func() time.Time
}

// GrantClaims captures a validated bus access grant.
type GrantClaims struct {
	Issuer         string
	Audience       []string
	ExpiresAt      time.Time
	IssuedAt       time.Time
	JWTID          string
	AgentServiceID string
}

// grantClaims is the internal claims type used for JWT parsing.
type grantClaims struct {
	jwt.RegisteredClaims
	AgentServiceID string `json:"agent_service_id"`
}

// MintAccessGrant signs a bus access grant for an agent identity.
func MintAccessGrant(key ed25519.PrivateKey, agentServiceID string, ttl time.Duration, cfg GrantConfig) (string, error) {
	agentServiceID = strings.TrimSpace(agentServiceID)
	if agentServiceID == "" {
		return "", errors.New("agent service id is required")
	}
	if len(key) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("signing key must be %d bytes", ed25519.PrivateKeySize)
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return "", errors.New("grant issuer and audience are required")
	}
	if ttl <= 0 {
		return "", errors.New("grant ttl must be positive")
	}
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}

	grantID, err := id.NewID()
	if err != nil {
		return "", fmt.Errorf("generate grant id: %w", err)
	}
	issued := now().UTC()
	claims := grantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(issued),
			NotBefore: jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
			ID:        grantID,
		},
		AgentServiceID: agentServiceID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign access grant: %w", err)
	}
	return signed, nil
}

// VerifyAccessGrant verifies a bus access grant and returns its claims.
func VerifyAccessGrant(grant string, key ed25519.PublicKey, cfg GrantConfig) (GrantClaims, error) {
	grant = strings.TrimSpace(grant)
	if grant == "" {
		return GrantClaims{}, errors.New("access grant is required")
	}
	if len(key) != ed25519.PublicKeySize {
		return GrantClaims{}, fmt.Errorf("verification key must be %d bytes", ed25519.PublicKeySize)
	}
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}

	var parsed grantClaims
	_, err := jwt.ParseWithClaims(grant, &parsed, func(token *jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return GrantClaims{}, fmt.Errorf("parse access grant: %w", err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return GrantClaims{}, errors.New("access grant issuer mismatch")
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return GrantClaims{}, errors.New("access grant audience mismatch")
	}
	if parsed.ID == "" {
		return GrantClaims{}, errors.New("access grant jti is required")
	}
	if strings.TrimSpace(parsed.AgentServiceID) == "" {
		return GrantClaims{}, errors.New("access grant agent service id is required")
	}
	if parsed.ExpiresAt == nil {
		return GrantClaims{}, errors.New("access grant exp is required")
	}
	current := now().UTC()
	if !parsed.ExpiresAt.Time.UTC().After(current) {
		return GrantClaims{}, errors.New("access grant is expired")
	}
	if parsed.NotBefore != nil && current.Before(parsed.NotBefore.Time.UTC()) {
		return GrantClaims{}, errors.New("access grant not active yet")
	}

	claims := GrantClaims{
		Issuer:         parsed.Issuer,
		Audience:       []string(parsed.Audience),
		ExpiresAt:      parsed.ExpiresAt.Time.UTC(),
		JWTID:          parsed.ID,
		AgentServiceID: parsed.AgentServiceID,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// audienceContains reports whether the audience list contains the value.
func audienceContains(audience jwt.ClaimStrings, value string) bool {
	for _, item := range audience {
		if item == value {
			return true
		}
	}
	return false
}
