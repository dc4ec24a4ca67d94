package session

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	apperrors "github.com/openconf/openconf/internal/platform/errors"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv(EnvSessionGrantIssuer, "")
	t.Setenv(EnvSessionGrantAudience, "")
	t.Setenv(EnvSessionGrantPublicKey, "")

	if _, err := LoadConfigFromEnv(nil); err == nil {
		t.Fatal("expected error when env vars are missing")
	}

	pubKey, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	t.Setenv(EnvSessionGrantIssuer, "issuer")
	t.Setenv(EnvSessionGrantAudience, "audience")
	t.Setenv(EnvSessionGrantPublicKey, base64.RawStdEncoding.EncodeToString(pubKey))

	cfg, err := LoadConfigFromEnv(nil)
	if err != nil {
		t.Fatalf("load session grant config: %v", err)
	}
	if cfg.Issuer != "issuer" || cfg.Audience != "audience" {
		t.Fatal("expected issuer and audience to be loaded")
	}
	if len(cfg.Key) != ed25519.PublicKeySize {
		t.Fatalf("expected public key size %d", ed25519.PublicKeySize)
	}
}

func TestVerifySuccess(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	grant := signGrant(t, priv, map[string]any{
		"alg": "EdDSA",
		"typ": "JWT",
	}, map[string]any{
		"iss":     "issuer",
		"aud":     []string{"conference-service", "secondary"},
		"exp":     now.Add(2 * time.Hour).Unix(),
		"iat":     now.Add(-time.Minute).Unix(),
		"user_id": "user-1",
		"email":   "Ana@Example.org",
	})

	cfg := Config{Issuer: "issuer", Audience: "conference-service", Key: pub, Now: func() time.Time { return now }}
	principal, err := Verify(grant, cfg)
	if err != nil {
		t.Fatalf("verify session grant: %v", err)
	}
	if principal.UserID != "user-1" {
		t.Fatalf("user id = %q, want user-1", principal.UserID)
	}
	if principal.Email != "ana@example.org" {
		t.Fatalf("email = %q, want lowercased", principal.Email)
	}
}

func TestVerifyExpired(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	grant := signGrant(t, priv, map[string]any{"alg": "EdDSA"}, map[string]any{
		"iss":     "issuer",
		"aud":     "conference-service",
		"exp":     now.Add(-time.Minute).Unix(),
		"user_id": "user-1",
	})

	cfg := Config{Issuer: "issuer", Audience: "conference-service", Key: pub, Now: func() time.Time { return now }}
	_, err = Verify(grant, cfg)
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeSessionGrantExpired {
		t.Fatalf("expected SESSION_GRANT_EXPIRED, got %v", err)
	}
}

func TestVerifyIssuerMismatch(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	grant := signGrant(t, priv, map[string]any{"alg": "EdDSA"}, map[string]any{
		"iss":     "other-issuer",
		"aud":     "conference-service",
		"exp":     now.Add(time.Hour).Unix(),
		"user_id": "user-1",
	})

	cfg := Config{Issuer: "issuer", Audience: "conference-service", Key: pub, Now: func() time.Time { return now }}
	_, err = Verify(grant, cfg)
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeSessionGrantInvalid {
		t.Fatalf("expected SESSION_GRANT_INVALID, got %v", err)
	}
}

func TestVerifyInvalidSignature(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate other key: %v", err)
	}

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	grant := signGrant(t, otherPriv, map[string]any{"alg": "EdDSA"}, map[string]any{
		"iss":     "issuer",
		"aud":     "conference-service",
		"exp":     now.Add(time.Hour).Unix(),
		"user_id": "user-1",
	})

	cfg := Config{Issuer: "issuer", Audience: "conference-service", Key: pub, Now: func() time.Time { return now }}
	if _, err := Verify(grant, cfg); err == nil {
		t.Fatal("expected signature verification to fail")
	}
}

func TestVerifyRequiresUserID(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	grant := signGrant(t, priv, map[string]any{"alg": "EdDSA"}, map[string]any{
		"iss": "issuer",
		"aud": "conference-service",
		"exp": now.Add(time.Hour).Unix(),
	})

	cfg := Config{Issuer: "issuer", Audience: "conference-service", Key: pub, Now: func() time.Time { return now }}
	if _, err := Verify(grant, cfg); err == nil {
		t.Fatal("expected missing user id to fail")
	}
}

func signGrant(t *testing.T, privateKey ed25519.PrivateKey, header, payload map[string]any) string {
	t.Helper()

	headerJSON, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	encodedHeader := base64.RawURLEncoding.EncodeToString(headerJSON)
	encodedPayload := base64.RawURLEncoding.EncodeToString(payloadJSON)
	signingInput := encodedHeader + "." + encodedPayload
	signature := ed25519.Sign(privateKey, []byte(signingInput))
	encodedSig := base64.RawURLEncoding.EncodeToString(signature)
	return signingInput + "." + encodedSig
}
