package identity

import (
	"crypto/rsa"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ProviderConfig describes how to check session tokens minted by the hosted
// identity provider.
type ProviderConfig struct {
	PublicKeyPEM string
	// Issuer is checked when set.
	Issuer string
	// AuthorizedParties restricts the azp claim when non-empty.
	AuthorizedParties []string
	Cookie            string
	Leeway            time.Duration
}

// sessionClaims are the claims a provider session token carries. The profile
// fields are optional and depend on the provider's session template.
type sessionClaims struct {
	jwt.RegisteredClaims
	AuthorizedParty string `json:"azp,omitempty"`
	Email           string `json:"email,omitempty"`
	Name            string `json:"name,omitempty"`
	Picture         string `json:"picture,omitempty"`
}

// ProviderVerifier verifies RS256 session tokens offline with the
// provider's public key.
type ProviderVerifier struct {
	key    *rsa.PublicKey
	parser *jwt.Parser
	cfg    ProviderConfig
}

var _ Verifier = (*ProviderVerifier)(nil)

func NewProviderVerifier(cfg ProviderConfig) (*ProviderVerifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parse provider public key: %w", err)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &ProviderVerifier{key: key, parser: jwt.NewParser(opts...), cfg: cfg}, nil
}

func (v *ProviderVerifier) VerifyRequest(r *http.Request) (Identity, error) {
	return v.verify(requestToken(r, v.cfg.Cookie))
}

func (v *ProviderVerifier) VerifyHandshake(r *http.Request) (Identity, error) {
	return v.verify(handshakeToken(r, v.cfg.Cookie))
}

func (v *ProviderVerifier) verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrNoCredential
	}
	claims := &sessionClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: empty subject", ErrInvalidCredential)
	}
	if len(v.cfg.AuthorizedParties) > 0 && claims.AuthorizedParty != "" &&
		!slices.Contains(v.cfg.AuthorizedParties, claims.AuthorizedParty) {
		return Identity{}, fmt.Errorf("%w: unauthorized party %q", ErrInvalidCredential, claims.AuthorizedParty)
	}
	return Identity{
		UserID:  claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}, nil
}
