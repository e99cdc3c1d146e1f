// Package config loads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	LogLevel string

	MongoURI     string
	DatabaseName string
	MongoTimeout time.Duration

	JWTSecret          string
	AccessTokenTTL     time.Duration
	BcryptCost         int
	EmailCaseSensitive bool

	AllowedOrigins []string

	AdminEmail    string
	AdminPassword string
	AdminName     string

	RedisURL        string
	LoginRateLimit  int
	LoginRateWindow time.Duration

	Avatar AvatarConfig

	MaxQueryLimit     int
	DefaultQueryLimit int
}

// AvatarConfig selects and configures the object storage used for avatar
// uploads. An empty Backend disables uploads.
type AvatarConfig struct {
	Backend string // "r2", "gcs", "memory" or ""

	R2Bucket       string
	R2AccessKeyID  string
	R2SecretKey    string
	R2Endpoint     string
	R2PublicDomain string

	GCSBucket       string
	CredentialsFile string

	MaxUploadSizeMB   int
	AllowedExtensions []string
	AllowedMimeTypes  []string
}

// LoadDefaults populates development defaults.
func (c *Config) LoadDefaults() {
	c.Port = "8080"
	c.LogLevel = "info"
	c.DatabaseName = "eldercare"
	c.MongoTimeout = 10 * time.Second
	c.AccessTokenTTL = 60 * time.Minute
	c.BcryptCost = 10
	c.AdminName = "Admin"
	c.LoginRateLimit = 10
	c.LoginRateWindow = time.Minute
	c.Avatar.MaxUploadSizeMB = 5
	c.Avatar.AllowedExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}
	c.Avatar.AllowedMimeTypes = []string{"image/jpeg", "image/png", "image/webp"}
	c.MaxQueryLimit = 100
	c.DefaultQueryLimit = 20
}

// Load reads .env (if present) then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv. Unset variables keep their defaults.
func FromEnv(getenv func(string) string) (*Config, error) {
	c := &Config{}
	c.LoadDefaults()

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []string
	num := func(key string, dst *int) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be a positive integer, got %q", key, v))
			return
		}
		*dst = n
	}
	list := func(key string, dst *[]string) {
		v := getenv(key)
		if strings.TrimSpace(v) == "" {
			return
		}
		out := make([]string, 0)
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*dst = out
	}

	str("PORT", &c.Port)
	str("LOG_LEVEL", &c.LogLevel)
	str("MONGODB_URI", &c.MongoURI)
	str("DATABASE_NAME", &c.DatabaseName)
	str("JWT_SECRET", &c.JWTSecret)
	str("ADMIN_EMAIL", &c.AdminEmail)
	c.AdminPassword = getenv("ADMIN_PASSWORD")
	str("ADMIN_NAME", &c.AdminName)
	str("REDIS_URL", &c.RedisURL)
	list("ALLOWED_ORIGINS", &c.AllowedOrigins)

	mongoTimeout := int(c.MongoTimeout / time.Second)
	num("MONGODB_TIMEOUT_SECONDS", &mongoTimeout)
	c.MongoTimeout = time.Duration(mongoTimeout) * time.Second

	ttl := int(c.AccessTokenTTL / time.Minute)
	num("ACCESS_TOKEN_TTL_MINUTES", &ttl)
	c.AccessTokenTTL = time.Duration(ttl) * time.Minute

	num("BCRYPT_COST", &c.BcryptCost)
	num("LOGIN_RATE_LIMIT", &c.LoginRateLimit)
	window := int(c.LoginRateWindow / time.Second)
	num("LOGIN_RATE_WINDOW_SECONDS", &window)
	c.LoginRateWindow = time.Duration(window) * time.Second

	num("READ_QUERY_MAX_LIMIT", &c.MaxQueryLimit)
	num("DEFAULT_READ_QUERY_LIMIT", &c.DefaultQueryLimit)

	if v := strings.TrimSpace(getenv("EMAIL_CASE_SENSITIVE")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("EMAIL_CASE_SENSITIVE must be a boolean, got %q", v))
		}
		c.EmailCaseSensitive = b
	}

	str("AVATAR_STORAGE", &c.Avatar.Backend)
	c.Avatar.Backend = strings.ToLower(c.Avatar.Backend)
	str("R2_BUCKET", &c.Avatar.R2Bucket)
	str("R2_ACCESS_KEY_ID", &c.Avatar.R2AccessKeyID)
	str("R2_SECRET_ACCESS_KEY", &c.Avatar.R2SecretKey)
	str("R2_ENDPOINT", &c.Avatar.R2Endpoint)
	str("R2_PUBLIC_DOMAIN", &c.Avatar.R2PublicDomain)
	str("GCS_BUCKET", &c.Avatar.GCSBucket)
	str("CREDENTIALS_FILE_LOCATION", &c.Avatar.CredentialsFile)
	num("MAX_UPLOAD_SIZE_MB", &c.Avatar.MaxUploadSizeMB)
	list("ALLOWED_FILE_EXTENSIONS", &c.Avatar.AllowedExtensions)
	list("ALLOWED_FILE_MIME_TYPES", &c.Avatar.AllowedMimeTypes)

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return c, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.MongoURI == "" {
		return fmt.Errorf("MONGODB_URI is required")
	}
	if c.DefaultQueryLimit > c.MaxQueryLimit {
		return fmt.Errorf("DEFAULT_READ_QUERY_LIMIT (%d) exceeds READ_QUERY_MAX_LIMIT (%d)", c.DefaultQueryLimit, c.MaxQueryLimit)
	}
	switch c.Avatar.Backend {
	case "", "memory":
	case "r2":
		a := c.Avatar
		if a.R2Bucket == "" || a.R2AccessKeyID == "" || a.R2SecretKey == "" || a.R2Endpoint == "" {
			return fmt.Errorf("missing R2 env vars (R2_BUCKET, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY, R2_ENDPOINT)")
		}
	case "gcs":
		if c.Avatar.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when AVATAR_STORAGE=gcs")
		}
	default:
		return fmt.Errorf("unknown AVATAR_STORAGE %q (want r2, gcs, memory or empty)", c.Avatar.Backend)
	}
	return nil
}
