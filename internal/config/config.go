package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout int
	Timeout     int
	Prefix      string
}

type S3Config struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
	Prefix          string
}

type ExtractionConfig struct {
	APIURL             string
	APIKey             string
	Model              string
	MaxRetries         int
	BaseBackoffSeconds int
	TimeoutSeconds     int
}

type AppConfig struct {
	Port        string
	Token       string
	StoreDriver string
	LogLevel    string

	Postgres   PostgresConfig
	Redis      RedisConfig
	S3         S3Config
	Extraction ExtractionConfig

	ExportDir         string
	FilesPublicPrefix string
	ExternalURL       string
	FileRetentionMins int

	DefaultStartYear int
	DefaultEndYear   int
	ArchiveSources   bool
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func mustAtoi(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		logrus.Fatalf("invalid int value %q: %v", s, err)
	}
	return i
}

func mustBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		logrus.Fatalf("invalid bool value %q: %v", s, err)
	}
	return b
}

func Load() AppConfig {
	return AppConfig{
		Port:        getenv("APP_PORT", "8010"),
		Token:       getenv("APP_TOKEN", ""),
		StoreDriver: strings.ToLower(getenv("STORE_DRIVER", StoreMemory)),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		Postgres: PostgresConfig{
			Host:     getenv("PG_HOST", "127.0.0.1"),
			Port:     mustAtoi(getenv("PG_PORT", "5432")),
			User:     getenv("PG_USER", "root"),
			Password: getenv("PG_PASSWORD", ""),
			DBName:   getenv("PG_DB", "arrears"),
			SSLMode:  getenv("PG_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:        getenv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:    getenv("REDIS_PASSWORD", ""),
			DB:          mustAtoi(getenv("REDIS_DB", "0")),
			MaxRetries:  mustAtoi(getenv("REDIS_MAX_RETRIES", "5")),
			DialTimeout: mustAtoi(getenv("REDIS_DIAL_TIMEOUT", "10")),
			Timeout:     mustAtoi(getenv("REDIS_TIMEOUT", "5")),
			Prefix:      getenv("REDIS_PREFIX", "arrears_recon:"),
		},
		S3: S3Config{
			Enabled:         mustBool(getenv("S3_ENABLED", "false")),
			Endpoint:        getenv("S3_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getenv("S3_ACCESS_KEY", "minio"),
			SecretAccessKey: getenv("S3_SECRET_KEY", "minio123"),
			Bucket:          getenv("S3_BUCKET", "arrears"),
			Region:          getenv("S3_REGION", "us-east-1"),
			UseSSL:          mustBool(getenv("S3_USE_SSL", "false")),
			Prefix:          getenv("S3_PREFIX", ""),
		},
		Extraction: ExtractionConfig{
			APIURL:             getenv("GEMINI_API_URL", "https://generativelanguage.googleapis.com"),
			APIKey:             getenv("GEMINI_API_KEY", ""),
			Model:              getenv("GEMINI_MODEL", "gemini-3-flash-preview"),
			MaxRetries:         mustAtoi(getenv("EXTRACT_MAX_RETRIES", "5")),
			BaseBackoffSeconds: mustAtoi(getenv("EXTRACT_BASE_BACKOFF_SECONDS", "5")),
			TimeoutSeconds:     mustAtoi(getenv("EXTRACT_TIMEOUT_SECONDS", "120")),
		},
		ExportDir:         getenv("EXPORT_DIR", "./exports"),
		FilesPublicPrefix: getenv("FILES_PUBLIC_PREFIX", "/files"),
		ExternalURL:       getenv("EXTERNAL_URL", ""),
		FileRetentionMins: mustAtoi(getenv("FILE_RETENTION_MINUTES", "30")),
		DefaultStartYear:  mustAtoi(getenv("DEFAULT_START_YEAR", "2004")),
		DefaultEndYear:    mustAtoi(getenv("DEFAULT_END_YEAR", "2026")),
		ArchiveSources:    mustBool(getenv("ARCHIVE_SOURCES", "false")),
	}
}
