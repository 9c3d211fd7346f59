package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server ServerConfig

	// Backend selection: "memory", "mongo", or "mysql"
	Backend string

	Mongo      MongoConfig
	Database   DatabaseConfig
	Cache      CacheConfig
	Sync       SyncConfig
	Auth       AuthConfig
	Cloudinary CloudinaryConfig
	Music      MusicConfig
}

// ServerConfig configures the demo HTTP server.
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoConfig struct {
	URI      string
	Database string
}

// DatabaseConfig configures the MySQL document store backend.
type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	DatabaseName string
}

type CacheConfig struct {
	Freshness time.Duration
}

type SyncConfig struct {
	MaxRetries   int
	RetryBase    time.Duration
	WriteTimeout time.Duration
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type CloudinaryConfig struct {
	CloudName    string
	UploadPreset string
}

type MusicConfig struct {
	BaseURL string
}

// Load reads configuration from the environment, after loading .env when
// present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host:         getenv("SERVER_HOST", ""),
			Port:         getenv("SERVER_PORT", "8080"),
			ReadTimeout:  getseconds("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getseconds("SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		Backend: getenv("SYNC_BACKEND", "memory"),
		Mongo: MongoConfig{
			URI:      getenv("MONGO_URI", "mongodb://localhost:27017"),
			Database: getenv("MONGO_DATABASE", "gamely"),
		},
		Database: DatabaseConfig{
			Host:         getenv("DB_HOST", "localhost"),
			Port:         getenv("DB_PORT", "3306"),
			Username:     getenv("DB_USERNAME", "root"),
			Password:     getenv("DB_PASSWORD", ""),
			DatabaseName: getenv("DB_NAME", "gamely"),
		},
		Cache: CacheConfig{
			Freshness: getseconds("CACHE_FRESHNESS", 30*time.Second),
		},
		Sync: SyncConfig{
			MaxRetries:   getint("SYNC_MAX_RETRIES", 3),
			RetryBase:    getmillis("SYNC_RETRY_BASE_MS", 100*time.Millisecond),
			WriteTimeout: getseconds("SYNC_WRITE_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: getenv("JWT_SECRET", ""),
			TokenTTL:  getseconds("TOKEN_TTL", 24*time.Hour),
		},
		Cloudinary: CloudinaryConfig{
			CloudName:    getenv("CLOUDINARY_CLOUD_NAME", ""),
			UploadPreset: getenv("CLOUDINARY_UPLOAD_PRESET", "ml_default"),
		},
		Music: MusicConfig{
			BaseURL: getenv("MUSIC_API_BASE_URL", ""),
		},
	}
}

// DSN builds the MySQL connection string for the sqlstore backend.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.Database.Username,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DatabaseName,
	)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getseconds(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func getmillis(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return fallback
}
