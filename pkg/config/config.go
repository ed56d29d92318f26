package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Preview artifact backends.
const (
	PreviewStoreFilesystem = "filesystem"
	PreviewStoreRedis      = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Reports     ReportsConfig
	Preview     PreviewConfig
	Definitions DefinitionsConfig
	Permissions PermissionsConfig
	Procedures  ProceduresConfig
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
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ReportsConfig configures the rendering engine and the audit worker.
type ReportsConfig struct {
	FontDir           string
	EncodeErrors      string
	AuditEnabled      bool
	WorkerConcurrency int
	WorkerRetries     int
}

// PreviewConfig configures designer preview artifacts.
type PreviewConfig struct {
	Store           string
	StorageDir      string
	HandleSecret    string
	TTL             time.Duration
	CleanupInterval time.Duration
}

// DefinitionsConfig tunes the in-process override history cache.
type DefinitionsConfig struct {
	CacheSize int
	CacheTTL  time.Duration
}

// PermissionsConfig maps report rights to the legacy right codes.
type PermissionsConfig struct {
	QueryReport             []string
	MutationAdd             []string
	MutationEdit            []string
	EnrolledFamilies        []string
	InsureesWithoutPhotos   []string
	ClaimHistory            []string
	ClaimOverview           []string
	ContributionCollection  []string
	PaymentCategoryOverview []string
}

// ProceduresConfig lists stored procedures legacy reports may call.
type ProceduresConfig struct {
	Allowed []string
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
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
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Reports = ReportsConfig{
		FontDir:           v.GetString("REPORT_FONT_DIR"),
		EncodeErrors:      v.GetString("REPORT_ENCODE_ERRORS"),
		AuditEnabled:      v.GetBool("REPORT_AUDIT_ENABLED"),
		WorkerConcurrency: v.GetInt("REPORT_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("REPORT_WORKER_RETRIES"),
	}

	cfg.Preview = PreviewConfig{
		Store:           strings.ToLower(v.GetString("PREVIEW_STORE")),
		StorageDir:      v.GetString("PREVIEW_STORAGE_DIR"),
		HandleSecret:    v.GetString("PREVIEW_HANDLE_SECRET"),
		TTL:             parseDuration(v.GetString("PREVIEW_TTL"), time.Hour),
		CleanupInterval: parseDuration(v.GetString("PREVIEW_CLEANUP_INTERVAL"), 10*time.Minute),
	}

	cfg.Definitions = DefinitionsConfig{
		CacheSize: v.GetInt("DEFINITION_CACHE_SIZE"),
		CacheTTL:  parseDuration(v.GetString("DEFINITION_CACHE_TTL"), time.Minute),
	}

	cfg.Permissions = PermissionsConfig{
		QueryReport:             splitAndTrim(v.GetString("REPORT_PERMS_QUERY")),
		MutationAdd:             splitAndTrim(v.GetString("REPORT_PERMS_MUTATION_ADD")),
		MutationEdit:            splitAndTrim(v.GetString("REPORT_PERMS_MUTATION_EDIT")),
		EnrolledFamilies:        splitAndTrim(v.GetString("REPORT_PERMS_ENROLLED_FAMILIES")),
		InsureesWithoutPhotos:   splitAndTrim(v.GetString("REPORT_PERMS_INSUREES_WITHOUT_PHOTOS")),
		ClaimHistory:            splitAndTrim(v.GetString("REPORT_PERMS_CLAIM_HISTORY")),
		ClaimOverview:           splitAndTrim(v.GetString("REPORT_PERMS_CLAIM_OVERVIEW")),
		ContributionCollection:  splitAndTrim(v.GetString("REPORT_PERMS_CONTRIBUTION_COLLECTION")),
		PaymentCategoryOverview: splitAndTrim(v.GetString("REPORT_PERMS_PAYMENT_CATEGORY_OVERVIEW")),
	}

	cfg.Procedures = ProceduresConfig{
		Allowed: splitAndTrim(v.GetString("REPORT_ALLOWED_PROCEDURES")),
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
	v.SetDefault("DB_NAME", "imis")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("REPORT_FONT_DIR", "./static/report/reportbro/fonts")
	v.SetDefault("REPORT_ENCODE_ERRORS", "strict")
	v.SetDefault("REPORT_AUDIT_ENABLED", true)
	v.SetDefault("REPORT_WORKER_CONCURRENCY", 2)
	v.SetDefault("REPORT_WORKER_RETRIES", 3)

	v.SetDefault("PREVIEW_STORE", PreviewStoreFilesystem)
	v.SetDefault("PREVIEW_STORAGE_DIR", "./previews")
	v.SetDefault("PREVIEW_HANDLE_SECRET", "dev_preview_secret")
	v.SetDefault("PREVIEW_TTL", "1h")
	v.SetDefault("PREVIEW_CLEANUP_INTERVAL", "10m")

	v.SetDefault("DEFINITION_CACHE_SIZE", 256)
	v.SetDefault("DEFINITION_CACHE_TTL", "1m")

	v.SetDefault("REPORT_PERMS_QUERY", "131200")
	v.SetDefault("REPORT_PERMS_MUTATION_ADD", "131224")
	v.SetDefault("REPORT_PERMS_MUTATION_EDIT", "131225")
	v.SetDefault("REPORT_PERMS_ENROLLED_FAMILIES", "131215")
	v.SetDefault("REPORT_PERMS_INSUREES_WITHOUT_PHOTOS", "131210")
	v.SetDefault("REPORT_PERMS_CLAIM_HISTORY", "131223")
	v.SetDefault("REPORT_PERMS_CLAIM_OVERVIEW", "131213")
	v.SetDefault("REPORT_PERMS_CONTRIBUTION_COLLECTION", "131204")
	v.SetDefault("REPORT_PERMS_PAYMENT_CATEGORY_OVERVIEW", "131211")

	v.SetDefault("REPORT_ALLOWED_PROCEDURES", "uspSSRSEnroledFamilies,uspSSRSInsureeWithoutPhotos")
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

// isMissingFile reports a missing .env; viper surfaces it as a path error when the
// config file is set explicitly.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
