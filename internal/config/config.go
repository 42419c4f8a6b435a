package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // analytics.timezone must resolve in minimal containers

	"github.com/joho/godotenv"
	"github.com/proanbud/proanbud-api/internal/secrets"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Document store drivers
const (
	StoreDriverMemory    = "memory"
	StoreDriverRedis     = "redis"
	StoreDriverFirestore = "firestore"
	StoreDriverPostgres  = "postgres"
	StoreDriverSQLite    = "sqlite"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Store     StoreConfig
	Redis     RedisConfig
	Firestore FirestoreConfig
	Database  DatabaseConfig
	Firebase  FirebaseConfig
	ApiKey    ApiKeyConfig
	Secrets   SecretsConfig
	Logging   LoggingConfig
	Server    ServerConfig
	CORS      CORSConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
	Analytics AnalyticsConfig
	Jobs      JobsConfig
	Metrics   MetricsConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Port        int
}

// StoreConfig selects the document store backend
type StoreConfig struct {
	// Driver is one of memory, redis, firestore, postgres or sqlite
	Driver string
	// OperationTimeout bounds single store calls made by jobs (seconds)
	OperationTimeout int
}

type RedisConfig struct {
	URL          string
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  int // seconds
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
}

type FirestoreConfig struct {
	ProjectID       string
	DatabaseID      string
	CredentialsFile string
	CredentialsJSON string // Loaded from secrets or environment
}

type DatabaseConfig struct {
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	// SQLitePath is the database file used by the sqlite driver
	SQLitePath string
	// Listen enables LISTEN/NOTIFY change feeds on postgres
	Listen        bool
	NotifyChannel string
}

// FirebaseConfig holds the settings used to verify Firebase ID tokens
type FirebaseConfig struct {
	ProjectID string
	// JWKSURL serves the public keys that sign ID tokens
	JWKSURL string
	// KeyCacheTTL is how long fetched keys are reused (seconds)
	KeyCacheTTL int
}

type ApiKeyConfig struct {
	SecretName string
	Value      string // Loaded from secrets or environment
}

type SecretsConfig struct {
	// Source determines where secrets are loaded from: "environment", "vault", or "auto"
	Source       string
	KeyVaultName string
	CacheEnabled bool
	CacheTTL     int // seconds
}

type LoggingConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	ReadTimeout    int
	WriteTimeout   int
	RequestTimeout int
	EnableSwagger  bool
	// StreamHeartbeat is the interval between SSE keep-alive comments (seconds)
	StreamHeartbeat int
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	// AllowedOrigins is a list of allowed origins for CORS requests
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	// MaxAge is the max age (in seconds) for preflight cache
	MaxAge int
}

// SecurityConfig holds security header configuration
type SecurityConfig struct {
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	HSTSPreload           bool
	ContentSecurityPolicy string
	// FrameOptions sets the X-Frame-Options header (DENY, SAMEORIGIN, or empty to disable)
	FrameOptions       string
	ContentTypeNosniff bool
	XSSProtection      string
	ReferrerPolicy     string
	PermissionsPolicy  string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled bool
	// RequestsPerMinute is the default rate limit for unauthenticated requests (per IP)
	RequestsPerMinute int
	// RequestsPerMinuteAuth is the rate limit for authenticated requests (per account)
	RequestsPerMinuteAuth int
	BurstSize             int
	WhitelistIPs          []string
	WhitelistPaths        []string
}

// AnalyticsConfig controls the analytics cache and calendar
type AnalyticsConfig struct {
	// Timezone is the IANA zone used for day and month boundaries
	Timezone string
	// StaleAfter is the age after which a cached summary is recomputed (seconds)
	StaleAfter int
	// ActivityLimit is the number of dashboard activity entries
	ActivityLimit int
}

// JobsConfig holds the cron schedules of background jobs (with seconds field)
type JobsConfig struct {
	Enabled                 bool
	AnalyticsRefreshCron    string
	CounterReconcileCron    string
	AnalyticsRefreshTimeout int // seconds
	CounterReconcileTimeout int // seconds
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

// ConnectionString builds PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// ConnMaxLifetimeDuration returns connection max lifetime as duration
func (d *DatabaseConfig) ConnMaxLifetimeDuration() time.Duration {
	return time.Duration(d.ConnMaxLifetime) * time.Second
}

// ReadTimeoutDuration returns read timeout as duration
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns write timeout as duration
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// RequestTimeoutDuration returns request timeout as duration
func (s *ServerConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(s.RequestTimeout) * time.Second
}

// StreamHeartbeatDuration returns the SSE keep-alive interval
func (s *ServerConfig) StreamHeartbeatDuration() time.Duration {
	return time.Duration(s.StreamHeartbeat) * time.Second
}

// OperationTimeoutDuration returns the per-call store timeout
func (s *StoreConfig) OperationTimeoutDuration() time.Duration {
	return time.Duration(s.OperationTimeout) * time.Second
}

// DialTimeoutDuration returns the redis dial timeout
func (r *RedisConfig) DialTimeoutDuration() time.Duration {
	return time.Duration(r.DialTimeout) * time.Second
}

// ReadTimeoutDuration returns the redis read timeout
func (r *RedisConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(r.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the redis write timeout
func (r *RedisConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(r.WriteTimeout) * time.Second
}

// KeyCacheTTLDuration returns how long token signing keys are cached
func (f *FirebaseConfig) KeyCacheTTLDuration() time.Duration {
	return time.Duration(f.KeyCacheTTL) * time.Second
}

// Issuer returns the expected "iss" claim of ID tokens
func (f *FirebaseConfig) Issuer() string {
	return "https://securetoken.google.com/" + f.ProjectID
}

// StaleAfterDuration returns the analytics cache lifetime
func (a *AnalyticsConfig) StaleAfterDuration() time.Duration {
	return time.Duration(a.StaleAfter) * time.Second
}

// Location loads the configured timezone
func (a *AnalyticsConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid analytics timezone %q: %w", a.Timezone, err)
	}
	return loc, nil
}

// AnalyticsRefreshTimeoutDuration bounds one analytics refresh run
func (j *JobsConfig) AnalyticsRefreshTimeoutDuration() time.Duration {
	return time.Duration(j.AnalyticsRefreshTimeout) * time.Second
}

// CounterReconcileTimeoutDuration bounds one counter reconciliation run
func (j *JobsConfig) CounterReconcileTimeoutDuration() time.Duration {
	return time.Duration(j.CounterReconcileTimeout) * time.Second
}

// Validate checks settings that would otherwise fail late
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverMemory, StoreDriverSQLite, StoreDriverPostgres:
	case StoreDriverRedis:
		if c.Redis.URL == "" && c.Redis.Address == "" {
			return fmt.Errorf("redis.url or redis.address is required for the redis store")
		}
	case StoreDriverFirestore:
		if c.Firestore.ProjectID == "" {
			return fmt.Errorf("firestore.projectId is required for the firestore store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Analytics.StaleAfter <= 0 {
		return fmt.Errorf("analytics.staleAfter must be positive")
	}
	if _, err := c.Analytics.Location(); err != nil {
		return err
	}
	return nil
}

// Load loads configuration from file and environment variables
// This is a basic load that doesn't fetch secrets from vault
// Use LoadWithSecrets for full secret resolution
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override config file
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.ApiKey.Value == "" {
		cfg.ApiKey.Value = v.GetString("ADMIN_API_KEY")
	}
	if cfg.Firebase.ProjectID == "" {
		cfg.Firebase.ProjectID = v.GetString("FIREBASE_PROJECT_ID")
	}
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Firestore.CredentialsFile == "" {
		cfg.Firestore.CredentialsFile = v.GetString("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if cfg.Secrets.KeyVaultName == "" {
		cfg.Secrets.KeyVaultName = v.GetString("AZURE_KEY_VAULT_NAME")
	}

	return &cfg, nil
}

// LoadWithSecrets loads configuration and resolves secrets from the configured source.
// Key Vault is used when USE_AZURE_KEY_VAULT=true and the environment is staging or
// production; otherwise secrets come from environment variables.
func LoadWithSecrets(ctx context.Context, logger *zap.Logger) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	useKeyVault := strings.ToLower(os.Getenv("USE_AZURE_KEY_VAULT")) == "true"
	isValidEnv := cfg.App.Environment == "staging" || cfg.App.Environment == "production"

	if !useKeyVault {
		logger.Info("USE_AZURE_KEY_VAULT not enabled, using environment variables for secrets",
			zap.String("environment", cfg.App.Environment),
		)
		return cfg, nil
	}

	if !isValidEnv {
		logger.Warn("USE_AZURE_KEY_VAULT is enabled but environment is not staging or production, using environment variables for secrets",
			zap.String("environment", cfg.App.Environment),
		)
		return cfg, nil
	}

	if cfg.Secrets.KeyVaultName == "" {
		return nil, fmt.Errorf("AZURE_KEY_VAULT_NAME is required when USE_AZURE_KEY_VAULT=true")
	}

	logger.Info("Azure Key Vault enabled for secrets",
		zap.String("environment", cfg.App.Environment),
		zap.String("key_vault_name", cfg.Secrets.KeyVaultName),
	)

	provider, err := secrets.NewProvider(&secrets.ProviderConfig{
		Source:       secrets.SourceVault,
		VaultName:    cfg.Secrets.KeyVaultName,
		Environment:  cfg.App.Environment,
		CacheEnabled: cfg.Secrets.CacheEnabled,
		CacheTTL:     time.Duration(cfg.Secrets.CacheTTL) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secrets provider (USE_AZURE_KEY_VAULT=true requires valid vault): %w", err)
	}
	if !provider.IsVaultEnabled() {
		return nil, fmt.Errorf("vault provider not enabled despite USE_AZURE_KEY_VAULT=true")
	}

	applySecrets(ctx, cfg, provider, logger)
	logger.Info("Secrets loaded from vault successfully")
	return cfg, nil
}

// secretSource is the part of secrets.Provider used to overlay configuration
type secretSource interface {
	GetSecretOrEnv(ctx context.Context, secretName, envVar string) (string, error)
}

func applySecrets(ctx context.Context, cfg *Config, provider secretSource, logger *zap.Logger) {
	set := func(target *string, secretName, envVar string) {
		value, err := provider.GetSecretOrEnv(ctx, secretName, envVar)
		if err != nil {
			logger.Debug("secret not available", zap.String("secret", secretName), zap.Error(err))
			return
		}
		if value != "" {
			*target = value
		}
	}

	set(&cfg.Database.Host, "POSTGRES-MAIN-HOST", "DATABASE_HOST")
	set(&cfg.Database.User, "POSTGRES-MAIN-USER", "DATABASE_USER")
	set(&cfg.Database.Password, "POSTGRES-MAIN-PASSWORD", "DATABASE_PASSWORD")
	if defaultDB := os.Getenv("DEFAULT_DATABASE"); defaultDB != "" {
		cfg.Database.Name = defaultDB
	}
	if sslMode := os.Getenv("DATABASE_SSLMODE"); sslMode != "" {
		cfg.Database.SSLMode = sslMode
	}

	set(&cfg.Redis.Password, "REDIS-PASSWORD", "REDIS_PASSWORD")
	set(&cfg.Firestore.CredentialsJSON, "firestore-credentials", "FIRESTORE_CREDENTIALSJSON")
	set(&cfg.ApiKey.Value, "admin-api-key", "ADMIN_API_KEY")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "Proanbud API")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.port", 8080)

	// Store defaults
	v.SetDefault("store.driver", StoreDriverSQLite)
	v.SetDefault("store.operationTimeout", 10)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 20)
	v.SetDefault("redis.minIdleConns", 2)
	v.SetDefault("redis.dialTimeout", 5)
	v.SetDefault("redis.readTimeout", 3)
	v.SetDefault("redis.writeTimeout", 3)

	// Firestore defaults
	v.SetDefault("firestore.databaseId", "(default)")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "proanbud")
	v.SetDefault("database.user", "proanbud_user")
	v.SetDefault("database.password", "proanbud_password")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", 300)
	v.SetDefault("database.sqlitePath", "proanbud.db")
	v.SetDefault("database.listen", true)
	v.SetDefault("database.notifyChannel", "proanbud_changes")

	// Firebase defaults
	v.SetDefault("firebase.jwksUrl", "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com")
	v.SetDefault("firebase.keyCacheTTL", 3600)

	// Secrets defaults
	v.SetDefault("secrets.source", "auto")
	v.SetDefault("secrets.cacheEnabled", true)
	v.SetDefault("secrets.cacheTTL", 300)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Server defaults
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 0) // SSE streams stay open
	v.SetDefault("server.requestTimeout", 60)
	v.SetDefault("server.enableSwagger", true)
	v.SetDefault("server.streamHeartbeat", 25)

	// CORS defaults
	v.SetDefault("cors.allowedOrigins", []string{})
	v.SetDefault("cors.allowedMethods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowedHeaders", []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Account-ID", "X-Request-ID"})
	v.SetDefault("cors.exposedHeaders", []string{"Location", "X-Request-ID"})
	v.SetDefault("cors.allowCredentials", true)
	v.SetDefault("cors.maxAge", 300)

	// Security header defaults
	v.SetDefault("security.enableHSTS", false)
	v.SetDefault("security.hstsMaxAge", 31536000)
	v.SetDefault("security.hstsIncludeSubdomains", true)
	v.SetDefault("security.hstsPreload", false)
	v.SetDefault("security.contentSecurityPolicy", "default-src 'self'")
	v.SetDefault("security.frameOptions", "DENY")
	v.SetDefault("security.contentTypeNosniff", true)
	v.SetDefault("security.xssProtection", "1; mode=block")
	v.SetDefault("security.referrerPolicy", "strict-origin-when-cross-origin")
	v.SetDefault("security.permissionsPolicy", "geolocation=(), microphone=(), camera=()")

	// Rate limiting defaults
	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.requestsPerMinute", 60)
	v.SetDefault("rateLimit.requestsPerMinuteAuth", 120)
	v.SetDefault("rateLimit.burstSize", 10)
	v.SetDefault("rateLimit.whitelistIPs", []string{"127.0.0.1", "::1"})
	v.SetDefault("rateLimit.whitelistPaths", []string{"/health", "/health/store", "/health/ready", "/metrics"})

	// Analytics defaults
	v.SetDefault("analytics.timezone", "Europe/Oslo")
	v.SetDefault("analytics.staleAfter", 3600)
	v.SetDefault("analytics.activityLimit", 5)

	// Job defaults
	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.analyticsRefreshCron", "0 */15 * * * *")
	v.SetDefault("jobs.counterReconcileCron", "0 30 3 * * *")
	v.SetDefault("jobs.analyticsRefreshTimeout", 600)
	v.SetDefault("jobs.counterReconcileTimeout", 1800)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
