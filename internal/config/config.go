package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Auth modes.
const (
	AuthModeJWT      = "jwt"
	AuthModeProvider = "provider"
)

// Media backends.
const (
	MediaLocal      = "local"
	MediaCloudinary = "cloudinary"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// ConfigPathEnvVar overrides the YAML config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

var defaultConfigPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	AppName string `koanf:"app_name"`
	Env     string `koanf:"env"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port"`

	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Media    MediaConfig    `koanf:"media"`
	WS       WSConfig       `koanf:"ws"`
	Redis    RedisConfig    `koanf:"redis"`

	EncryptKey     string        `koanf:"encrypt_key"`
	LegacyKeys     []string      `koanf:"legacy_keys"`
	CORSOrigins    []string      `koanf:"cors_origins"`
	RateLimit      int           `koanf:"rate_limit"`
	RateLimitEvery time.Duration `koanf:"rate_limit_window"`
	MaxBodyBytes   int64         `koanf:"max_body_bytes"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver"`
	// URL is a file path for sqlite, a DSN for postgres, a URI for mongo.
	URL      string `koanf:"url"`
	MongoDB  string `koanf:"mongo_db"`
	MaxConns int    `koanf:"max_conns"`
}

type AuthConfig struct {
	Mode string `koanf:"mode"`

	// jwt mode
	JWTSecret    string        `koanf:"jwt_secret"`
	TokenTTL     time.Duration `koanf:"token_ttl"`
	CookieName   string        `koanf:"cookie_name"`
	CookieSecure bool          `koanf:"cookie_secure"`

	// provider mode
	ProviderPublicKey string   `koanf:"provider_public_key"`
	ProviderIssuer    string   `koanf:"provider_issuer"`
	AuthorizedParties []string `koanf:"authorized_parties"`
	SessionCookie     string   `koanf:"session_cookie"`
	WebhookSecret     string   `koanf:"webhook_secret"`
}

type MediaConfig struct {
	Backend       string `koanf:"backend"`
	UploadDir     string `koanf:"upload_dir"`
	PublicBaseURL string `koanf:"public_base_url"`
	MaxImageBytes int    `koanf:"max_image_bytes"`

	CloudinaryURL    string `koanf:"cloudinary_url"`
	CloudName        string `koanf:"cloudinary_cloud_name"`
	CloudinaryKey    string `koanf:"cloudinary_api_key"`
	CloudinarySecret string `koanf:"cloudinary_api_secret"`
	CloudinaryFolder string `koanf:"cloudinary_folder"`
}

type WSConfig struct {
	SendBuffer     int           `koanf:"send_buffer"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	PongTimeout    time.Duration `koanf:"pong_timeout"`
	MaxMessageSize int64         `koanf:"max_message_size"`
}

type RedisConfig struct {
	// URL enables the presence mirror when set.
	URL string `koanf:"url"`
	// Key prefixes every presence key; processes sharing it form one cluster.
	Key string `koanf:"key"`
	// Instance names this process's own set. Defaults to host-pid.
	Instance string        `koanf:"instance"`
	TTL      time.Duration `koanf:"ttl"`
}

func defaultConfig() *Config {
	return &Config{
		AppName: "QuickChat API",
		Env:     "development",
		Host:    "0.0.0.0",
		Port:    5000,
		Log:     LogConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			Driver:   DriverSQLite,
			URL:      "quickchat.db",
			MongoDB:  "chat-app",
			MaxConns: 20,
		},
		Auth: AuthConfig{
			Mode:          AuthModeJWT,
			TokenTTL:      7 * 24 * time.Hour,
			CookieName:    "token",
			SessionCookie: "__session",
		},
		Media: MediaConfig{
			Backend:          MediaLocal,
			UploadDir:        "uploads",
			PublicBaseURL:    "http://localhost:5000",
			MaxImageBytes:    4 << 20,
			CloudinaryFolder: "quickchat",
		},
		WS: WSConfig{
			SendBuffer:     64,
			WriteTimeout:   10 * time.Second,
			PongTimeout:    60 * time.Second,
			MaxMessageSize: 4096,
		},
		Redis:          RedisConfig{Key: "quickchat:online", TTL: 30 * time.Second},
		CORSOrigins:    []string{"http://localhost:5173", "http://localhost:3000"},
		RateLimit:      300,
		RateLimitEvery: time.Minute,
		// a 4 MB image grows by a third as base64
		MaxBodyBytes: 8 << 20,
	}
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "quickchat"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in increasing priority. Outside production a .env file in the
// working directory is read first.
func Load() (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := splitLists(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Redis.Instance == "" {
		cfg.Redis.Instance = defaultInstanceID()
	}
	if cfg.Media.Backend == MediaLocal {
		if err := os.MkdirAll(cfg.Media.UploadDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating upload dir: %w", err)
		}
	}
	return cfg, nil
}

// Validate checks that every selected variant has what it needs.
func (c *Config) Validate() error {
	var errs []error
	if c.EncryptKey == "" {
		errs = append(errs, errors.New("ENCRYPTION_KEY is required"))
	}
	switch c.Auth.Mode {
	case AuthModeJWT:
		if c.Auth.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required in jwt auth mode"))
		}
	case AuthModeProvider:
		if c.Auth.ProviderPublicKey == "" {
			errs = append(errs, errors.New("AUTH_PROVIDER_PUBLIC_KEY is required in provider auth mode"))
		}
		if c.Auth.WebhookSecret == "" {
			errs = append(errs, errors.New("AUTH_WEBHOOK_SECRET is required in provider auth mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth mode %q", c.Auth.Mode))
	}
	switch c.Media.Backend {
	case MediaLocal:
	case MediaCloudinary:
		if c.Media.CloudinaryURL == "" && (c.Media.CloudName == "" || c.Media.CloudinaryKey == "" || c.Media.CloudinarySecret == "") {
			errs = append(errs, errors.New("cloudinary media backend needs CLOUDINARY_URL or cloud name, key and secret"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown media backend %q", c.Media.Backend))
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres, DriverMongo:
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	return errors.Join(errs...)
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction reports whether the app runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range defaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envKeys maps environment variables onto config paths. Variables not listed
// are ignored so unrelated environment does not leak into the config.
var envKeys = map[string]string{
	"APP_NAME":  "app_name",
	"APP_ENV":   "env",
	"HTTP_HOST": "host",
	"PORT":      "port",
	"HTTP_PORT": "port",

	"LOG_LEVEL":  "log.level",
	"LOG_FORMAT": "log.format",

	"DB_DRIVER":        "database.driver",
	"DATABASE_URL":     "database.url",
	"MONGODB_URI":      "database.url",
	"MONGODB_DATABASE": "database.mongo_db",
	"DB_MAX_CONNS":     "database.max_conns",

	"AUTH_MODE":                "auth.mode",
	"JWT_SECRET":               "auth.jwt_secret",
	"TOKEN_TTL":                "auth.token_ttl",
	"AUTH_COOKIE_NAME":         "auth.cookie_name",
	"AUTH_COOKIE_SECURE":       "auth.cookie_secure",
	"AUTH_PROVIDER_PUBLIC_KEY": "auth.provider_public_key",
	"AUTH_PROVIDER_ISSUER":     "auth.provider_issuer",
	"AUTH_AUTHORIZED_PARTIES":  "auth.authorized_parties",
	"AUTH_SESSION_COOKIE":      "auth.session_cookie",
	"AUTH_WEBHOOK_SECRET":      "auth.webhook_secret",

	"MEDIA_BACKEND":         "media.backend",
	"UPLOAD_DIR":            "media.upload_dir",
	"PUBLIC_BASE_URL":       "media.public_base_url",
	"MAX_IMAGE_BYTES":       "media.max_image_bytes",
	"CLOUDINARY_URL":        "media.cloudinary_url",
	"CLOUDINARY_CLOUD_NAME": "media.cloudinary_cloud_name",
	"CLOUDINARY_API_KEY":    "media.cloudinary_api_key",
	"CLOUDINARY_API_SECRET": "media.cloudinary_api_secret",
	"CLOUDINARY_FOLDER":     "media.cloudinary_folder",

	"WS_SEND_BUFFER":      "ws.send_buffer",
	"WS_WRITE_TIMEOUT":    "ws.write_timeout",
	"WS_PONG_TIMEOUT":     "ws.pong_timeout",
	"WS_MAX_MESSAGE_SIZE": "ws.max_message_size",

	"REDIS_URL":      "redis.url",
	"REDIS_KEY":      "redis.key",
	"REDIS_INSTANCE": "redis.instance",
	"REDIS_TTL":      "redis.ttl",

	"ENCRYPTION_KEY":         "encrypt_key",
	"LEGACY_ENCRYPTION_KEYS": "legacy_keys",
	"CORS_ORIGINS":           "cors_origins",
	"FRONTEND_URL":           "cors_origins",
	"RATE_LIMIT":             "rate_limit",
	"RATE_LIMIT_WINDOW":      "rate_limit_window",
	"MAX_BODY_BYTES":         "max_body_bytes",
}

// envKey returns "" for unmapped variables, which koanf skips.
func envKey(key string) string {
	return envKeys[key]
}

var listKeys = []string{"cors_origins", "legacy_keys", "auth.authorized_parties"}

// splitLists turns comma-separated environment values into slices.
func splitLists(k *koanf.Koanf) error {
	for _, path := range listKeys {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}
