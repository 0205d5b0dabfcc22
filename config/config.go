package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendSupabase = "supabase"
	BackendLocal    = "local"

	ObjectStoreLocal = "local"
	ObjectStoreS3    = "s3"

	CacheMemory = "memory"
	CacheRedis  = "redis"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	defaultPort                = "8080"
	defaultBucket              = "images"
	defaultSessionPollInterval = 30 * time.Second
	defaultSessionTTL          = 24 * time.Hour
	defaultCacheTTL            = 5 * time.Minute
	defaultUploadMaxBytes      = 32 << 20
)

type Config struct {
	Port string

	// which backend implementation serves auth, rows and objects
	Backend string

	// supabase project settings
	SupabaseURL         string
	SupabaseAnonKey     string
	Bucket              string
	SessionPollInterval time.Duration

	// self-hosted backend
	DatabaseDriver   string
	DatabaseDSN      string
	ObjectStore      string
	MediaStoragePath string // root for locally stored objects
	PublicBaseURL    string // prefix used to build public object URLs
	S3Bucket         string
	S3Region         string
	S3Endpoint       string
	JWTSecret        string
	SessionTTL       time.Duration
	AdminEmail       string
	AdminPassword    string

	// gallery cache
	CacheBackend  string
	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// authenticates anti-forgery cookies; random per start when empty
	CSRFKey string

	UploadMaxBytes     int64
	CORSAllowedOrigins []string
	LogDevelopment     bool
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", defaultPort)
	v.SetDefault("BACKEND", BackendSupabase)
	v.SetDefault("SUPABASE_BUCKET", defaultBucket)
	v.SetDefault("DATABASE_DRIVER", DriverSQLite)
	v.SetDefault("DATABASE_DSN", "gallery.db")
	v.SetDefault("OBJECT_STORE", ObjectStoreLocal)
	v.SetDefault("MEDIA_STORAGE_PATH", filepath.Join(".", "media_storage"))
	v.SetDefault("S3_REGION", "ap-northeast-2")
	v.SetDefault("CACHE_BACKEND", CacheMemory)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")
	return v
}

func getDurationOrDefault(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	raw := v.GetString(key)
	if raw == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %s. Error: %v", key, raw, defaultVal, err)
		return defaultVal
	}
	return d
}

func getIntOrDefault(v *viper.Viper, key string, defaultVal int) int {
	raw := v.GetString(key)
	if raw == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", key, raw, defaultVal, err)
		return defaultVal
	}
	return val
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadConfig reads configuration from the environment and, when CONFIG_FILE
// is set, from that file. Environment values win over file values.
func LoadConfig() (Config, error) {
	v := newViper()
	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file '%s': %w", file, err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	mediaStorage := v.GetString("MEDIA_STORAGE_PATH")
	absMediaStorage, err := filepath.Abs(mediaStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", mediaStorage, err)
	}

	cfg := Config{
		Port:                v.GetString("PORT"),
		Backend:             strings.ToLower(v.GetString("BACKEND")),
		SupabaseURL:         strings.TrimRight(v.GetString("SUPABASE_URL"), "/"),
		SupabaseAnonKey:     v.GetString("SUPABASE_ANON_KEY"),
		Bucket:              v.GetString("SUPABASE_BUCKET"),
		SessionPollInterval: getDurationOrDefault(v, "SESSION_POLL_INTERVAL", defaultSessionPollInterval),
		DatabaseDriver:      strings.ToLower(v.GetString("DATABASE_DRIVER")),
		DatabaseDSN:         v.GetString("DATABASE_DSN"),
		ObjectStore:         strings.ToLower(v.GetString("OBJECT_STORE")),
		MediaStoragePath:    absMediaStorage,
		PublicBaseURL:       strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		S3Bucket:            v.GetString("S3_BUCKET"),
		S3Region:            v.GetString("S3_REGION"),
		S3Endpoint:          v.GetString("S3_ENDPOINT"),
		JWTSecret:           v.GetString("JWT_SECRET"),
		SessionTTL:          getDurationOrDefault(v, "SESSION_TTL", defaultSessionTTL),
		AdminEmail:          v.GetString("ADMIN_EMAIL"),
		AdminPassword:       v.GetString("ADMIN_PASSWORD"),
		CacheBackend:        strings.ToLower(v.GetString("CACHE_BACKEND")),
		CacheTTL:            getDurationOrDefault(v, "CACHE_TTL", defaultCacheTTL),
		RedisAddr:           v.GetString("REDIS_ADDR"),
		RedisPassword:       v.GetString("REDIS_PASSWORD"),
		RedisDB:             getIntOrDefault(v, "REDIS_DB", 0),
		CSRFKey:             v.GetString("CSRF_KEY"),
		UploadMaxBytes:      int64(getIntOrDefault(v, "UPLOAD_MAX_BYTES", defaultUploadMaxBytes)),
		CORSAllowedOrigins:  splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		LogDevelopment:      v.GetBool("LOG_DEVELOPMENT"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Backend {
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseAnonKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_ANON_KEY are required when BACKEND=%s", BackendSupabase)
		}
	case BackendLocal:
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when BACKEND=%s", BackendLocal)
		}
		if c.DatabaseDriver != DriverSQLite && c.DatabaseDriver != DriverPostgres {
			return fmt.Errorf("unsupported DATABASE_DRIVER '%s'", c.DatabaseDriver)
		}
		if c.ObjectStore != ObjectStoreLocal && c.ObjectStore != ObjectStoreS3 {
			return fmt.Errorf("unsupported OBJECT_STORE '%s'", c.ObjectStore)
		}
		if c.ObjectStore == ObjectStoreS3 && c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when OBJECT_STORE=%s", ObjectStoreS3)
		}
	default:
		return fmt.Errorf("unsupported BACKEND '%s'", c.Backend)
	}

	if c.CSRFKey != "" && len(c.CSRFKey) < 32 {
		return fmt.Errorf("CSRF_KEY must be at least 32 bytes")
	}
	if c.CacheBackend != CacheMemory && c.CacheBackend != CacheRedis {
		return fmt.Errorf("unsupported CACHE_BACKEND '%s'", c.CacheBackend)
	}
	return nil
}

// SecureCookies reports whether the site is served over HTTPS, in which case
// session cookies are marked Secure.
func (c Config) SecureCookies() bool {
	return strings.HasPrefix(c.PublicBaseURL, "https://")
}
