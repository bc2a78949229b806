package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Values come from the environment (optionally via a .env file) with
// sensible defaults for local development.
type Config struct {
	ServerAddr string

	// Pose pipeline
	PoseTmpDir      string // Working directory root for session uploads and artifacts
	PoseMountPrefix string // Public URL prefix under which artifacts are served
	PoseToolPath    string // External landmark toolkit binary (extract/render)
	FFmpegPath      string
	PoseWorkers     int   // Bounded dispatcher capacity for pipeline runs
	MaxUploadBytes  int64 // Per-request upload limit
	SessionTTL      time.Duration
	SweepInterval   time.Duration

	// Result store backend: "memory" or "redis"
	ResultStore    string
	ResultCacheTTL time.Duration

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Artifact mirror: "none" or "minio"
	ArtifactMirror string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	// 日志配置
	LogPath       string
	LogLevel      string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		PoseTmpDir:      getEnv("POSE_TMP_DIR", filepath.Join("tmp")),
		PoseMountPrefix: getEnv("POSE_MOUNT_PREFIX", "/tmp"),
		PoseToolPath:    getEnv("POSE_TOOL_PATH", "pose-toolkit"),
		FFmpegPath:      getEnv("FFMPEG_PATH", "ffmpeg"),
		PoseWorkers:     getEnvInt("POSE_WORKERS", 4),
		MaxUploadBytes:  int64(getEnvInt("POSE_MAX_UPLOAD_MB", 512)) << 20,
		SessionTTL:      time.Duration(getEnvInt("POSE_SESSION_TTL_HOURS", 24)) * time.Hour,
		SweepInterval:   time.Duration(getEnvInt("POSE_SWEEP_INTERVAL_MINUTES", 30)) * time.Minute,

		ResultStore:    getEnv("RESULT_STORE", "memory"),
		ResultCacheTTL: time.Duration(getEnvInt("RESULT_CACHE_TTL_HOURS", 24)) * time.Hour,

		// Redis配置，使用默认值
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),     // 默认使用0号数据库

		ArtifactMirror: getEnv("ARTIFACT_MIRROR", "none"),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"), // For secrets, better not to have a hardcoded default
		MinioBucket:    getEnv("MINIO_BUCKET", "m1pose"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		LogPath:       getEnv("LOG_PATH", filepath.Join("logs", "m1pose.log")),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
	}
}
