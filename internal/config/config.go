package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Storage   StorageConfig
	Tracing   TracingConfig `mapstructure:"tracing"`
	Redis     RedisConfig
	Stripe    StripeConfig    `mapstructure:"stripe"`
	Payment   PaymentConfig   `mapstructure:"payment"`
	Mail      MailConfig      `mapstructure:"mail"`
	Superuser SuperuserConfig `mapstructure:"superuser"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// set from command line flags, not from the config file
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
	Recount      bool `mapstructure:"-"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Driver    string `mapstructure:"driver"`
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
	SSLMode   string `mapstructure:"sslmode"`
	// Path is the database file when Driver is sqlite.
	Path string `mapstructure:"path"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioSecure   bool   `mapstructure:"minio_secure"`
	OSSEndpoint   string `mapstructure:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	Host     string
	Port     int
	Password string
	DB       int
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// PaymentConfig holds checkout and reconciliation settings.
type PaymentConfig struct {
	Currency      string        `mapstructure:"currency"`
	SiteURL       string        `mapstructure:"site_url"`
	ProofMaxBytes int64         `mapstructure:"proof_max_bytes"`
	PendingTTL    time.Duration `mapstructure:"pending_ttl"`
	SweepCron     string        `mapstructure:"sweep_cron"`
}

type MailConfig struct {
	Provider       string `mapstructure:"provider"`
	SendGridAPIKey string `mapstructure:"sendgrid_api_key"`
	FromName       string `mapstructure:"from_name"`
	FromEmail      string `mapstructure:"from_email"`
}

type SuperuserConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("jwt.expire_hours", 72)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "uploads")
	v.SetDefault("payment.currency", "thb")
	v.SetDefault("payment.site_url", "http://localhost:8080")
	v.SetDefault("payment.proof_max_bytes", 5*1024*1024)
	v.SetDefault("payment.pending_ttl", "72h")
	v.SetDefault("payment.sweep_cron", "@every 15m")
	v.SetDefault("mail.provider", "console")
	v.SetDefault("mail.from_name", "IntelLearn")
	v.SetDefault("mail.from_email", "no-reply@intellearn.local")
	v.SetDefault("rate_limit.max_requests", 6000)
	v.SetDefault("rate_limit.window_minutes", 1)
}

func LoadConfig(path string) (*Config, error) {
	// .env is optional; real environment variables win over it
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("INTELLEARN")
	v.AutomaticEnv()
	setDefaults(v)

	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")
	v.BindEnv("database.path", "DATABASE_PATH")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("server.port", "PORT")

	// Storage
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	v.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	v.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	v.BindEnv("storage.oss_bucket", "OSS_BUCKET")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Stripe
	v.BindEnv("stripe.secret_key", "STRIPE_SECRET_KEY")
	v.BindEnv("stripe.webhook_secret", "STRIPE_WEBHOOK_SECRET")
	v.BindEnv("payment.site_url", "SITE_URL")

	// Mail
	v.BindEnv("mail.provider", "MAIL_PROVIDER")
	v.BindEnv("mail.sendgrid_api_key", "SENDGRID_API_KEY")

	// Superuser seed
	v.BindEnv("superuser.email", "SUPERUSER_EMAIL")
	v.BindEnv("superuser.password", "SUPERUSER_PASSWORD")
	v.BindEnv("superuser.name", "SUPERUSER_NAME")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	if cfg.Payment.ProofMaxBytes <= 0 {
		cfg.Payment.ProofMaxBytes = 5 * 1024 * 1024
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}
