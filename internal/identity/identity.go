// Package identity turns request credentials into a verified external user id.
//
// Two verifiers exist: JWTVerifier checks HS256 tokens this server issues at
// login, ProviderVerifier checks RS256 session tokens minted by the hosted
// identity provider. Both read the credential from the same places so the
// REST and push-channel surfaces do not care which one is configured.
package identity

import (
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrNoCredential means the request carried no token at all.
	ErrNoCredential = errors.New("missing credential")
	// ErrInvalidCredential covers bad signatures, expiry and wrong claims.
	ErrInvalidCredential = errors.New("invalid credential")
)

// Identity is what a verified credential tells us about the caller.
// Email, Name and Picture are only filled when the token carries them.
type Identity struct {
	UserID  string
	Email   string
	Name    string
	Picture string
}

// Verifier resolves the caller behind a REST request or a push-channel
// handshake.
type Verifier interface {
	VerifyRequest(r *http.Request) (Identity, error)
	VerifyHandshake(r *http.Request) (Identity, error)
}

// BearerProtocol is the Sec-WebSocket-Protocol marker that precedes a token.
const BearerProtocol = "bearer"

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < len("bearer ") || !strings.EqualFold(h[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[len("bearer "):])
}

// ProtocolToken returns the token of a "Sec-WebSocket-Protocol: bearer, <token>"
// header. Browsers cannot set Authorization on a WebSocket handshake.
func ProtocolToken(r *http.Request) string {
	h := r.Header.Get("Sec-WebSocket-Protocol")
	if h == "" {
		return ""
	}
	parts := strings.Split(h, ",")
	if len(parts) < 2 || !strings.EqualFold(strings.TrimSpace(parts[0]), BearerProtocol) {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func cookieToken(r *http.Request, name string) string {
	if name == "" {
		return ""
	}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// requestToken looks at the bearer header first, then the cookie.
func requestToken(r *http.Request, cookie string) string {
	if t := BearerToken(r); t != "" {
		return t
	}
	return cookieToken(r, cookie)
}

// handshakeToken additionally accepts the subprotocol header and the token
// query parameter.
func handshakeToken(r *http.Request, cookie string) string {
	if t := BearerToken(r); t != "" {
		return t
	}
	if t := ProtocolToken(r); t != "" {
		return t
	}
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t
	}
	return cookieToken(r, cookie)
}
