// Package ws is the server side of the push channel. Clients receive
// {"type","data"} frames; anything they send is read only as a liveness
// signal.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/aaronBIOO/QuickChat/internal/domain"
	"github.com/aaronBIOO/QuickChat/internal/identity"
	"github.com/aaronBIOO/QuickChat/internal/logging"
)

// Resolver maps a verified identity to the local user.
type Resolver interface {
	Resolve(ctx context.Context, id identity.Identity) (*domain.User, error)
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimRight(strings.TrimSpace(strings.ToLower(origin)), "/")
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if _, ok := allowed["*"]; ok {
		return func(r *http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			// non-browser clients send no Origin
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

// MakeHandler returns the /ws endpoint. The handshake is rejected with 403
// for a foreign origin and 401 for a missing or invalid credential; in both
// cases the presence registry is never touched.
func MakeHandler(hub *Hub, verifier identity.Verifier, users Resolver, allowedOrigins []string) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin:  checkOrigin,
		Subprotocols: []string{identity.BearerProtocol},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		id, err := verifier.VerifyHandshake(r)
		if err != nil {
			msg := "invalid credential"
			if errors.Is(err, identity.ErrNoCredential) {
				msg = "missing credential"
			}
			http.Error(w, msg, http.StatusUnauthorized)
			return
		}

		user, err := users.Resolve(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "unknown user", http.StatusUnauthorized)
				return
			}
			logging.Ctx(r.Context()).Error().Err(err).Msg("ws resolve user")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the error response.
			return
		}
		hub.Serve(user.ID, conn)
	}
}
