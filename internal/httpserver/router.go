// Package httpserver is the REST surface of the chat server.
package httpserver

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/aaronBIOO/QuickChat/docs"
	"github.com/aaronBIOO/QuickChat/internal/config"
	"github.com/aaronBIOO/QuickChat/internal/identity"
	"github.com/aaronBIOO/QuickChat/internal/media"
	"github.com/aaronBIOO/QuickChat/internal/service"
)

// Deps are the collaborators the router wires into handlers. Auth is nil in
// provider mode and Webhooks is nil in jwt mode. Files is nil unless the
// local media backend is active.
type Deps struct {
	Config   *config.Config
	Verifier identity.Verifier
	Auth     *service.AuthService
	Users    *service.UserService
	Messages *service.MessageService
	Webhooks *identity.WebhookVerifier
	Files    *media.Local
	// WS is the push-channel endpoint, mounted at /ws.
	WS http.Handler
}

// NewRouter constructs the main HTTP router and wires routes and middleware.
func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": cfg.AppName,
			"docs":    "/docs/index.html",
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	if d.Files != nil {
		r.Mount(strings.TrimSuffix(media.PathPrefix, "/"), UploadRoutes(d.Files))
	}

	if d.WS != nil {
		r.Handle("/ws", d.WS)
	}

	r.Route("/api", func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimit, cfg.RateLimitEvery))
		}
		r.Use(limitBody(cfg.MaxBodyBytes))

		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("Server is live"))
		})

		r.Route("/auth", func(r chi.Router) {
			if d.Auth != nil {
				r.Post("/signup", handleSignup(d.Auth, cfg.Auth))
				r.Post("/login", handleLogin(d.Auth, cfg.Auth))
			}
			r.Post("/logout", handleLogout(cfg.Auth))

			r.Group(func(r chi.Router) {
				r.Use(AuthMiddleware(d.Verifier, d.Users))
				r.Get("/check", handleCheck())
				r.Put("/update-profile", handleUpdateProfile(d.Users))
			})
		})

		r.Route("/messages", func(r chi.Router) {
			r.Use(AuthMiddleware(d.Verifier, d.Users))
			r.Get("/users", handleListPeers(d.Users))
			r.Get("/{peerID}", handleConversation(d.Messages))
			r.Post("/send/{peerID}", handleSend(d.Messages))
			r.Put("/mark/{messageID}", handleMarkSeen(d.Messages))
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(AuthMiddleware(d.Verifier, d.Users))
			r.Get("/online", handleListOnlineUsers(d.Users))
			r.Get("/{userID}", handleGetUser(d.Users))
		})

		if d.Webhooks != nil {
			r.Post("/webhooks/identity", handleIdentityWebhook(d.Webhooks, d.Users))
		}
	})

	return r
}
