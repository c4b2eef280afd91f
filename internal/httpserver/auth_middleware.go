package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/aaronBIOO/QuickChat/internal/domain"
	"github.com/aaronBIOO/QuickChat/internal/identity"
)

type contextKey string

const userContextKey contextKey = "currentUser"

// WithUser returns a new context carrying the current user.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// CurrentUser extracts the current user from context, if any.
func CurrentUser(r *http.Request) *domain.User {
	if u, ok := r.Context().Value(userContextKey).(*domain.User); ok {
		return u
	}
	return nil
}

// userResolver maps a verified identity to its local profile.
type userResolver interface {
	Resolve(ctx context.Context, id identity.Identity) (*domain.User, error)
}

// AuthMiddleware verifies the request credential and attaches the user to
// the context.
func AuthMiddleware(verifier identity.Verifier, users userResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := verifier.VerifyRequest(r)
			if err != nil {
				msg := "Not authorized - invalid token"
				if errors.Is(err, identity.ErrNoCredential) {
					msg = "Not authorized - no token"
				}
				writeFail(w, http.StatusUnauthorized, msg)
				return
			}

			user, err := users.Resolve(r.Context(), id)
			if err != nil {
				if errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrNotFound) {
					writeFail(w, http.StatusUnauthorized, "Not authorized - user not found")
					return
				}
				writeError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}
