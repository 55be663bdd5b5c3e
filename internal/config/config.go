package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	OwnerLockTTLSeconds  int
	OwnerLockWaitSeconds int

	UploadRatePerMinute float64
	UploadRateBurst     int

	CORSAllowedOrigins []string
	MaxUploadBytes     int64
	SnowflakeNode      int64
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:              getenv("APP_SERVICE", "equiplytics"),
		AppVersion:           getenv("APP_VERSION", "0.1.0"),
		Environment:          getenv("ENVIRONMENT", "development"),
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:         getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:               getenv("DATABASE_TYPE", "sqlite"),
		DBHost:               getenv("DATABASE_HOST", "localhost"),
		DBPort:               getenv("DATABASE_PORT", "5432"),
		DBName:               getenv("DATABASE_NAME", "equiplytics"),
		DBUser:               getenv("DATABASE_USER", "postgres"),
		DBPassword:           getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:            getenv("DATABASE_SSLMODE", "disable"),
		DBPath:               getenv("DATABASE_PATH", "equiplytics.db"),
		DBMaxIdleConn:        getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:        getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime:    getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime:    getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		RedisAddr:            strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:        getenv("REDIS_PASSWORD", ""),
		RedisDB:              getenvInt("REDIS_DB", 0),
		OwnerLockTTLSeconds:  getenvInt("OWNER_LOCK_TTL_SECONDS", 30),
		OwnerLockWaitSeconds: getenvInt("OWNER_LOCK_WAIT_SECONDS", 10),
		UploadRatePerMinute:  getenvFloat("UPLOAD_RATE_PER_MINUTE", 30),
		UploadRateBurst:      getenvInt("UPLOAD_RATE_BURST", 10),
		CORSAllowedOrigins:   parseList(getenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		MaxUploadBytes:       getenvInt64("MAX_UPLOAD_BYTES", 10<<20),
		SnowflakeNode:        getenvInt64("SNOWFLAKE_NODE", 1),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
