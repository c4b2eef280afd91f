package identity

import (
	"fmt"
	"net/http"

	"github.com/aaronBIOO/QuickChat/internal/security"
)

// JWTVerifier accepts the HS256 tokens issued by security.TokenService.
type JWTVerifier struct {
	tokens *security.TokenService
	cookie string
}

var _ Verifier = (*JWTVerifier)(nil)

func NewJWTVerifier(tokens *security.TokenService, cookie string) *JWTVerifier {
	return &JWTVerifier{tokens: tokens, cookie: cookie}
}

func (v *JWTVerifier) VerifyRequest(r *http.Request) (Identity, error) {
	return v.verify(requestToken(r, v.cookie))
}

func (v *JWTVerifier) VerifyHandshake(r *http.Request) (Identity, error) {
	return v.verify(handshakeToken(r, v.cookie))
}

func (v *JWTVerifier) verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrNoCredential
	}
	sub, err := v.tokens.Subject(token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	return Identity{UserID: sub}, nil
}
