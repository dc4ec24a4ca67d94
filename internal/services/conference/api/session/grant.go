// Package session verifies signed session grants and resolves them to a
// request principal.
package session

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/openconf/openconf/internal/platform/errors"
	"github.com/openconf/openconf/internal/platform/requestctx"
)

// Environment variable names for session grant verification.
const (
	EnvSessionGrantIssuer    = "OPENCONF_SESSION_GRANT_ISSUER"
	EnvSessionGrantAudience  = "OPENCONF_SESSION_GRANT_AUDIENCE"
	EnvSessionGrantPublicKey = "OPENCONF_SESSION_GRANT_PUBLIC_KEY"
)

// grantEnv holds raw env values before post-parse validation.
type grantEnv struct {
	Issuer    string `env:"OPENCONF_SESSION_GRANT_ISSUER"`
	Audience  string `env:"OPENCONF_SESSION_GRANT_AUDIENCE"`
	PublicKey string `env:"OPENCONF_SESSION_GRANT_PUBLIC_KEY"`
}

// Config defines how session grants are verified.
type Config struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// grantClaims is the internal claims type used for JWT parsing.
type grantClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// LoadConfigFromEnv reads session grant verification configuration.
func LoadConfigFromEnv(now func() time.Time) (Config, error) {
	var raw grantEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse session grant env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	publicKey := strings.TrimSpace(raw.PublicKey)
	if issuer == "" {
		return Config{}, fmt.Errorf("OPENCONF_SESSION_GRANT_ISSUER is required")
	}
	if audience == "" {
		return Config{}, fmt.Errorf("OPENCONF_SESSION_GRANT_AUDIENCE is required")
	}
	if publicKey == "" {
		return Config{}, fmt.Errorf("OPENCONF_SESSION_GRANT_PUBLIC_KEY is required")
	}
	keyBytes, err := decodeBase64(publicKey)
	if err != nil {
		return Config{}, fmt.Errorf("decode session grant public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return Config{}, fmt.Errorf("session grant public key must be %d bytes", ed25519.PublicKeySize)
	}
	if now == nil {
		now = time.Now
	}
	return Config{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PublicKey(keyBytes),
		Now:      now,
	}, nil
}

// Verify checks a session grant token and returns the request principal it
// carries.
func Verify(grant string, cfg Config) (requestctx.Principal, error) {
	grant = strings.TrimSpace(grant)
	if grant == "" {
		return requestctx.Principal{}, apperrors.New(apperrors.CodeSessionGrantInvalid, "session grant is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PublicKeySize {
		return requestctx.Principal{}, errors.New("session grant verifier is not configured")
	}

	var parsed grantClaims
	_, err := jwt.ParseWithClaims(grant, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return requestctx.Principal{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return requestctx.Principal{}, apperrors.WithMetadata(
			apperrors.CodeSessionGrantInvalid,
			"session grant issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return requestctx.Principal{}, apperrors.WithMetadata(
			apperrors.CodeSessionGrantInvalid,
			"session grant audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}
	if parsed.ExpiresAt == nil {
		return requestctx.Principal{}, apperrors.New(apperrors.CodeSessionGrantInvalid, "session grant exp is required")
	}

	now := cfg.Now().UTC()
	if !parsed.ExpiresAt.Time.UTC().After(now) {
		return requestctx.Principal{}, apperrors.New(apperrors.CodeSessionGrantExpired, "session grant is expired")
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time.UTC()) {
		return requestctx.Principal{}, apperrors.New(apperrors.CodeSessionGrantInvalid, "session grant not active yet")
	}

	userID := strings.TrimSpace(parsed.UserID)
	if userID == "" {
		return requestctx.Principal{}, apperrors.New(apperrors.CodeSessionGrantInvalid, "session grant user id is required")
	}
	return requestctx.Principal{
		UserID: userID,
		Email:  strings.ToLower(strings.TrimSpace(parsed.Email)),
	}, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeSessionGrantInvalid, "session grant signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeSessionGrantInvalid, "session grant alg is invalid")
	}
	return apperrors.New(apperrors.CodeSessionGrantInvalid, "session grant is invalid")
}

func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
