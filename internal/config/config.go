package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Env         string
	Port        int
	ServiceName string

	StoreDriver   string
	DBURL         string
	DBMigrate     bool
	MongoURL      string
	MongoDatabase string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	UserCacheTTL   time.Duration
	UserCacheLocal bool

	JWTSecret  string
	JWTTTL     time.Duration
	BcryptCost int

	AllowedOrigins       []string
	EmailCaseInsensitive bool
	MaxBodyBytes         int64

	AdminEmail     string
	AdminPassword  string
	AdminFirstName string
	AdminLastName  string

	OTelEndpoint string
}

// Load reads an optional .env file and then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env file", "err", err)
	}

	return Config{
		Env:         getEnv("APP_ENV", "dev"),
		Port:        getEnvInt("PORT", 5000),
		ServiceName: getEnv("SERVICE_NAME", "authhub"),

		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", DriverMemory)),
		DBURL:         getEnv("DB_URL", buildDBURL()),
		DBMigrate:     getEnvBool("DB_MIGRATE", true),
		MongoURL:      getEnv("MONGO_URL", "mongodb://127.0.0.1:27017"),
		MongoDatabase: getEnv("MONGO_DB", "authhub"),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		UserCacheTTL:   getEnvDuration("USER_CACHE_TTL", 30*time.Second),
		UserCacheLocal: getEnvBool("USER_CACHE_LOCAL", false),

		JWTSecret:  getEnv("JWT_SECRET", ""),
		JWTTTL:     getEnvDuration("JWT_TTL", 24*time.Hour),
		BcryptCost: getEnvInt("BCRYPT_COST", 0),

		AllowedOrigins:       getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		EmailCaseInsensitive: getEnvBool("AUTH_EMAIL_CASE_INSENSITIVE", true),
		MaxBodyBytes:         int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),

		AdminEmail:     getEnv("ADMIN_EMAIL", ""),
		AdminPassword:  getEnv("ADMIN_PASSWORD", ""),
		AdminFirstName: getEnv("ADMIN_FIRST_NAME", "Admin"),
		AdminLastName:  getEnv("ADMIN_LAST_NAME", "User"),

		OTelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

// Validate rejects configurations the server must not start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverPostgres, DriverMongo:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	if c.JWTSecret == "" {
		if !c.IsDev() {
			return errors.New("JWT_SECRET must be set")
		}
		c.JWTSecret = "dev-only-insecure-secret"
	}

	if c.JWTTTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}

	return nil
}

// User cache backends.
const (
	CacheOff   = "off"
	CacheLocal = "local"
	CacheRedis = "redis"
)

// UserCache picks the guard's user cache. Redis is shared by every replica.
// The in-process cache is never invalidated by writes on another replica, so
// it is only used when USER_CACHE_LOCAL marks this as a single instance.
func (c Config) UserCache() string {
	switch {
	case c.UserCacheTTL <= 0:
		return CacheOff
	case c.RedisAddr != "":
		return CacheRedis
	case c.UserCacheLocal:
		return CacheLocal
	default:
		return CacheOff
	}
}

func (c Config) IsDev() bool {
	return c.Env == "dev" || c.Env == "test"
}

// IsProduction drives the secure flag on auth cookies.
func (c Config) IsProduction() bool {
	return c.Env == "prod" || c.Env == "production"
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "authhub")
	pass := getEnv("DB_PASSWORD", "authhub")
	name := getEnv("DB_NAME", "authhub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			slog.Warn("invalid integer env value, using fallback", "key", key, "value", v)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("invalid boolean env value, using fallback", "key", key, "value", v)
			return fallback
		}
		return b
	}
	return fallback
}

// accepts Go durations ("24h") or plain seconds ("86400")
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	if d, err := time.ParseDuration(v); err == nil {
		return d
	}

	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}

	slog.Warn("invalid duration env value, using fallback", "key", key, "value", v)
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	out := make([]string, 0)
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}

	if len(out) == 0 {
		return fallback
	}
	return out
}
