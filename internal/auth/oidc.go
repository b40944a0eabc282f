package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"

	"github.com/AndyChoi4495/fragments/internal/logging"
)

// OIDCConfig holds OIDC provider configuration.
type OIDCConfig struct {
	IssuerURL string // e.g. https://cognito-idp.us-east-1.amazonaws.com/us-east-1_abc123
	ClientID  string
}

// OIDCProvider verifies ID tokens issued by an external identity provider.
type OIDCProvider struct {
	verifier *oidc.IDTokenVerifier
	config   OIDCConfig
}

// NewOIDCProvider creates an OIDC provider from config.
// Returns nil if IssuerURL is empty (OIDC disabled).
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	if cfg.IssuerURL == "" {
		return nil, nil
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider init: %w", err)
	}

	logging.Info("OIDC provider initialized",
		zap.String("issuer", cfg.IssuerURL),
		zap.String("client_id", cfg.ClientID))

	return newOIDCProvider(provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}), cfg), nil
}

func newOIDCProvider(verifier *oidc.IDTokenVerifier, cfg OIDCConfig) *OIDCProvider {
	return &OIDCProvider{verifier: verifier, config: cfg}
}

// ValidateToken verifies an ID token and returns its email claim.
func (o *OIDCProvider) ValidateToken(ctx context.Context, tokenStr string) (string, error) {
	idToken, err := o.verifier.Verify(ctx, tokenStr)
	if err != nil {
		return "", err
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified *bool  `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return "", fmt.Errorf("parse oidc claims: %w", err)
	}
	if claims.Email == "" {
		return "", errors.New("id token has no email claim")
	}
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		return "", errors.New("email is not verified")
	}
	return claims.Email, nil
}
