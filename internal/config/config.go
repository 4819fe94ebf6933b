package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr            string
	DatabaseURL     string
	RedisURL        string
	TokenSecret     string
	SessionTTL      time.Duration
	ChairPassphrase string
	ReposDir        string
	MigrationsDir   string
	CORSOrigin      string
	MeiliURL        string
	MeiliMasterKey  string
	// Minio - export archive, disabled when endpoint is empty
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

func Load() Config {
	return Config{
		Addr:            getenv("API_ADDR", ":8791"),
		DatabaseURL:     getenv("DATABASE_URL", ""),
		RedisURL:        getenv("REDIS_URL", ""),
		TokenSecret:     getenv("ROSTRUM_TOKEN_SECRET", "rostrum-dev-secret"),
		SessionTTL:      time.Duration(getenvInt("ROSTRUM_SESSION_TTL_SECONDS", 43200)) * time.Second,
		ChairPassphrase: getenv("ROSTRUM_CHAIR_PASSPHRASE", "resolutions@26"),
		ReposDir:        getenv("ROSTRUM_REPOS_DIR", "./data/repos"),
		MigrationsDir:   getenv("ROSTRUM_MIGRATIONS_DIR", "./db/migrations"),
		CORSOrigin:      getenv("ROSTRUM_CORS_ORIGIN", "*"),
		MeiliURL:        getenv("MEILI_URL", ""),
		MeiliMasterKey:  getenv("MEILI_MASTER_KEY", ""),
		MinioEndpoint:   getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey:  getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:  getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:     getenv("MINIO_BUCKET", "rostrum-exports"),
		MinioUseSSL:     getenvBool("MINIO_USE_SSL", false),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
