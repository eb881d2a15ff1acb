// Package auth verifies bearer credentials on the request hot path: RS256
// signature check, expiry, and a single cache lookup for the revocation
// marker. No other I/O is permitted here.
package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	gwerrors "github.com/hscale/adx-gateway/pkg/errors"
	"github.com/hscale/adx-gateway/pkg/redis"
)

// claims is the credential claim set the gateway trusts after verification.
type claims struct {
	jwt.RegisteredClaims
	TenantID    string   `json:"tenant_id"`
	SessionID   string   `json:"sid"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Validator verifies signed credentials and extracts identities.
type Validator struct {
	publicKey    *rsa.PublicKey
	store        redis.Store
	keys         *redis.KeyBuilder
	storeTimeout time.Duration
	log          *zap.Logger
}

// NewValidator creates a Validator. The store is consulted for session
// revocation markers; lookups are bounded by storeTimeout.
func NewValidator(publicKey *rsa.PublicKey, store redis.Store, log *zap.Logger) *Validator {
	return &Validator{
		publicKey:    publicKey,
		store:        store,
		keys:         redis.NewKeyBuilder(redis.NamespaceSession, redis.ContextAuth),
		storeTimeout: 2 * time.Second,
		log:          log.With(zap.String("module", "auth")),
	}
}

// ParsePublicKey parses a PEM-encoded RSA public key.
func ParsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	return jwt.ParseRSAPublicKeyFromPEM(pemBytes)
}

// Validate verifies the credential's signature, expiry, and revocation
// marker, and returns the Identity it asserts. Only RS256 tokens are
// accepted; claims are never trusted before the signature checks out.
func (v *Validator) Validate(ctx context.Context, credential string) (*Identity, error) {
	if credential == "" {
		return nil, gwerrors.ErrInvalidCredential
	}

	var c claims
	token, err := jwt.ParseWithClaims(credential, &c, func(_ *jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, gwerrors.Wrap(err, gwerrors.CodeExpiredCredential, "credential expired")
		}
		return nil, gwerrors.Wrap(err, gwerrors.CodeInvalidCredential, "credential verification failed")
	}
	if !token.Valid || c.Subject == "" {
		return nil, gwerrors.ErrInvalidCredential
	}

	if err := v.checkRevocation(ctx, c.SessionID); err != nil {
		return nil, err
	}

	identity := &Identity{
		Subject:     c.Subject,
		TenantID:    c.TenantID,
		SessionID:   c.SessionID,
		Roles:       c.Roles,
		Permissions: c.Permissions,
	}
	if c.IssuedAt != nil {
		identity.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		identity.ExpiresAt = c.ExpiresAt.Time
	}
	return identity, nil
}

// checkRevocation fails closed: a store error rejects the request rather
// than admitting a possibly revoked session.
func (v *Validator) checkRevocation(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.storeTimeout)
	defer cancel()

	revoked, err := v.store.Exists(ctx, v.keys.Build("revoked", sessionID))
	if err != nil {
		v.log.Error("revocation lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		return gwerrors.Wrap(err, gwerrors.CodeCacheUnavailable, "revocation lookup failed")
	}
	if revoked {
		return gwerrors.ErrRevokedCredential
	}
	return nil
}

// Revoke writes a revocation marker for the session. Subsequent Validate
// calls for credentials bound to this session fail with CREDENTIAL_REVOKED.
func (v *Validator) Revoke(ctx context.Context, sessionID string) error {
	return v.store.SetJSON(ctx, v.keys.Build("revoked", sessionID), true, redis.TTLRevocation)
}

// ExtractBearer extracts the token from an Authorization header value.
func ExtractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
