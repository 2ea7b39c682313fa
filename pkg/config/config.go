package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Face       FaceConfig
	Flag       FlagConfig
	Attendance AttendanceConfig
	Lockout    LockoutConfig
	Photos     PhotosConfig
	Exports    ExportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// FaceConfig tunes the face recognition integration. MatchThreshold is the
// maximum Euclidean distance between two descriptors that still counts as
// the same person; it trades false accepts against false rejects and must
// stay configurable rather than baked into call sites.
type FaceConfig struct {
	ServiceURLs    []string
	RequestTimeout time.Duration
	MatchThreshold float64
	DescriptorDim  int
	Skip           bool
}

// FlagConfig controls the student self-auth feature flag cache.
type FlagConfig struct {
	CacheTTL time.Duration
}

// AttendanceConfig governs ledger behaviour. Timezone is the institution
// timezone used to derive the calendar date of every record; client
// timezones are never trusted.
type AttendanceConfig struct {
	Timezone          string
	HistoryLimit      int
	ReconcileInterval time.Duration
	FallbackTTL       time.Duration
}

// LockoutConfig throttles repeated failed logins from a single instance.
type LockoutConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// PhotosConfig controls reference photo storage.
type PhotosConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	MaxFileSize     int64
}

// ExportsConfig gates attendance sheet exports.
type ExportsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Face = FaceConfig{
		ServiceURLs:    splitAndTrim(v.GetString("FACE_SERVICE_URLS")),
		RequestTimeout: parseDuration(v.GetString("FACE_REQUEST_TIMEOUT"), 5*time.Second),
		MatchThreshold: v.GetFloat64("FACE_MATCH_THRESHOLD"),
		DescriptorDim:  v.GetInt("FACE_DESCRIPTOR_DIM"),
		Skip:           v.GetBool("FACE_SKIP"),
	}

	cfg.Flag = FlagConfig{
		CacheTTL: parseDuration(v.GetString("AUTH_FLAG_CACHE_TTL"), 30*time.Second),
	}

	cfg.Attendance = AttendanceConfig{
		Timezone:          v.GetString("ATTENDANCE_TIMEZONE"),
		HistoryLimit:      v.GetInt("ATTENDANCE_HISTORY_LIMIT"),
		ReconcileInterval: parseDuration(v.GetString("ATTENDANCE_RECONCILE_INTERVAL"), time.Minute),
		FallbackTTL:       parseDuration(v.GetString("ATTENDANCE_FALLBACK_TTL"), 7*24*time.Hour),
	}

	cfg.Lockout = LockoutConfig{
		MaxAttempts: v.GetInt("LOGIN_MAX_ATTEMPTS"),
		Window:      parseDuration(v.GetString("LOGIN_LOCKOUT_WINDOW"), 60*time.Second),
	}

	maxPhotoSize := v.GetInt64("PHOTOS_MAX_FILE_SIZE")
	if maxPhotoSize <= 0 {
		maxPhotoSize = 5 * 1024 * 1024
	}
	cfg.Photos = PhotosConfig{
		StorageDir:      v.GetString("PHOTOS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("PHOTOS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("PHOTOS_SIGNED_URL_TTL"), 24*time.Hour),
		MaxFileSize:     maxPhotoSize,
	}

	cfg.Exports = ExportsConfig{
		Enabled: v.GetBool("ENABLE_EXPORTS"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "facemark")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "facemark-api")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("FACE_SERVICE_URLS", "http://localhost:8000")
	v.SetDefault("FACE_REQUEST_TIMEOUT", "5s")
	v.SetDefault("FACE_MATCH_THRESHOLD", 0.3)
	v.SetDefault("FACE_DESCRIPTOR_DIM", 128)
	v.SetDefault("FACE_SKIP", false)

	v.SetDefault("AUTH_FLAG_CACHE_TTL", "30s")

	v.SetDefault("ATTENDANCE_TIMEZONE", "Asia/Kolkata")
	v.SetDefault("ATTENDANCE_HISTORY_LIMIT", 15)
	v.SetDefault("ATTENDANCE_RECONCILE_INTERVAL", "1m")
	v.SetDefault("ATTENDANCE_FALLBACK_TTL", "168h")

	v.SetDefault("LOGIN_MAX_ATTEMPTS", 3)
	v.SetDefault("LOGIN_LOCKOUT_WINDOW", "60s")

	v.SetDefault("PHOTOS_STORAGE_DIR", "./photos")
	v.SetDefault("PHOTOS_SIGNED_URL_SECRET", "dev_photos_secret")
	v.SetDefault("PHOTOS_SIGNED_URL_TTL", "24h")
	v.SetDefault("PHOTOS_MAX_FILE_SIZE", 5*1024*1024)

	v.SetDefault("ENABLE_EXPORTS", true)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
