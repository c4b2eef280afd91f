package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aaronBIOO/QuickChat/internal/config"
	"github.com/aaronBIOO/QuickChat/internal/delivery"
	"github.com/aaronBIOO/QuickChat/internal/domain"
	"github.com/aaronBIOO/QuickChat/internal/httpserver"
	"github.com/aaronBIOO/QuickChat/internal/identity"
	"github.com/aaronBIOO/QuickChat/internal/logging"
	"github.com/aaronBIOO/QuickChat/internal/media"
	"github.com/aaronBIOO/QuickChat/internal/presence"
	"github.com/aaronBIOO/QuickChat/internal/security"
	"github.com/aaronBIOO/QuickChat/internal/service"
	"github.com/aaronBIOO/QuickChat/internal/storage/redis"
	"github.com/aaronBIOO/QuickChat/internal/store/mongo"
	"github.com/aaronBIOO/QuickChat/internal/store/postgres"
	"github.com/aaronBIOO/QuickChat/internal/store/sqlite"
	"github.com/aaronBIOO/QuickChat/internal/ws"
)

// @title           QuickChat API
// @version         1.0
// @description     One-to-one realtime chat backend.

// @host            localhost:5000
// @BasePath        /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("server stopped")
	}
}

type stores struct {
	users    domain.UserRepository
	messages domain.MessageRepository
	close    func()
}

func openStores(ctx context.Context, cfg config.DatabaseConfig) (*stores, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(cfg.URL, cfg.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return &stores{
			users:    postgres.NewUserRepo(db),
			messages: postgres.NewMessageRepo(db),
			close:    func() { db.Close() },
		}, nil

	case config.DriverMongo:
		db, err := mongo.Open(ctx, cfg.URL, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		disconnect := func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = db.Client().Disconnect(dctx)
		}
		if err := mongo.Migrate(ctx, db); err != nil {
			disconnect()
			return nil, fmt.Errorf("migrate mongo: %w", err)
		}
		return &stores{
			users:    mongo.NewUserRepo(db),
			messages: mongo.NewMessageRepo(db),
			close:    disconnect,
		}, nil

	default:
		db, err := sqlite.Open(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := sqlite.Migrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return &stores{
			users:    sqlite.NewUserRepo(db),
			messages: sqlite.NewMessageRepo(db),
			close:    func() { db.Close() },
		}, nil
	}
}

// newUploader builds the configured media backend behind a circuit breaker.
// files is non-nil only for the local backend.
func newUploader(cfg config.MediaConfig) (media.Uploader, *media.Local, error) {
	switch cfg.Backend {
	case config.MediaCloudinary:
		cld, err := media.NewCloudinary(media.CloudinaryConfig{
			URL:       cfg.CloudinaryURL,
			CloudName: cfg.CloudName,
			APIKey:    cfg.CloudinaryKey,
			APISecret: cfg.CloudinarySecret,
			Folder:    cfg.CloudinaryFolder,
			MaxBytes:  cfg.MaxImageBytes,
		})
		if err != nil {
			return nil, nil, err
		}
		return media.NewBreaker(cld, media.BreakerConfig{Name: "cloudinary"}), nil, nil
	default:
		local := media.NewLocal(cfg.UploadDir, cfg.PublicBaseURL, cfg.MaxImageBytes)
		return media.NewBreaker(local, media.BreakerConfig{Name: "local-media"}), local, nil
	}
}

func newVerifier(cfg config.AuthConfig, tokens *security.TokenService) (identity.Verifier, error) {
	if cfg.Mode == config.AuthModeProvider {
		return identity.NewProviderVerifier(identity.ProviderConfig{
			PublicKeyPEM:      cfg.ProviderPublicKey,
			Issuer:            cfg.ProviderIssuer,
			AuthorizedParties: cfg.AuthorizedParties,
			Cookie:            cfg.SessionCookie,
			Leeway:            5 * time.Second,
		})
	}
	return identity.NewJWTVerifier(tokens, cfg.CookieName), nil
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer st.close()

	encryptor, err := security.NewEncryptor([]byte(cfg.EncryptKey), cfg.LegacyKeys)
	if err != nil {
		return fmt.Errorf("init encryptor: %w", err)
	}
	uploader, files, err := newUploader(cfg.Media)
	if err != nil {
		return fmt.Errorf("init media: %w", err)
	}

	var (
		mirror  presence.Mirror
		cluster *redis.PresenceMirror
	)
	if cfg.Redis.URL != "" {
		rm, err := redis.New(ctx, cfg.Redis.URL, cfg.Redis.Key, cfg.Redis.Instance, cfg.Redis.TTL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rm.Close()
		// drop what a previous run of this instance left behind
		if err := rm.Reset(ctx); err != nil {
			logging.Warn().Err(err).Msg("reset presence mirror")
		}
		go rm.Run(ctx)
		mirror, cluster = rm, rm
	}

	registry := presence.NewRegistry(mirror)
	// flushes queued mirror updates before the redis client closes
	defer registry.Close()
	dispatcher := delivery.NewDispatcher(registry)

	tokens := security.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	verifier, err := newVerifier(cfg.Auth, tokens)
	if err != nil {
		return fmt.Errorf("init verifier: %w", err)
	}

	providerMode := cfg.Auth.Mode == config.AuthModeProvider
	userSvc := service.NewUserService(st.users, st.messages, registry, uploader, providerMode)
	if cluster != nil {
		userSvc.WithCluster(cluster)
	}
	msgSvc := service.NewMessageService(st.messages, st.users, encryptor, uploader, dispatcher)

	deps := httpserver.Deps{
		Config:   cfg,
		Verifier: verifier,
		Users:    userSvc,
		Messages: msgSvc,
		Files:    files,
	}
	if providerMode {
		wv, err := identity.NewWebhookVerifier(cfg.Auth.WebhookSecret)
		if err != nil {
			return fmt.Errorf("init webhook verifier: %w", err)
		}
		deps.Webhooks = wv
	} else {
		deps.Auth = service.NewAuthService(st.users, tokens, security.NewPasswordHasher(0))
	}

	hub := ws.NewHub(registry, ws.Options{
		SendBuffer:     cfg.WS.SendBuffer,
		WriteTimeout:   cfg.WS.WriteTimeout,
		PongTimeout:    cfg.WS.PongTimeout,
		MaxMessageSize: cfg.WS.MaxMessageSize,
	})
	deps.WS = ws.MakeHandler(hub, verifier, userSvc, cfg.CORSOrigins)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           httpserver.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().
			Str("addr", cfg.HTTPAddr()).
			Str("db", cfg.Database.Driver).
			Str("auth", cfg.Auth.Mode).
			Str("media", cfg.Media.Backend).
			Bool("redis", mirror != nil).
			Str("instance", cfg.Redis.Instance).
			Msg("starting QuickChat server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logging.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("graceful shutdown failed")
	}
	// hijacked connections are not tracked by the server
	hub.Shutdown()
	return nil
}
