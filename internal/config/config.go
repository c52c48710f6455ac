// Package config содержит логику чтения конфигурации сервисов платформы.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config содержит параметры конфигурации HTTP-сервиса investd.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	JWTSecret string `env:"JWT_SECRET"`
	ROISecret string `env:"ROI_SECRET"`

	WithdrawalFeeRate  decimal.Decimal `env:"WITHDRAWAL_FEE_RATE" envDefault:"0.10"`
	MinWithdrawal      decimal.Decimal `env:"MIN_WITHDRAWAL" envDefault:"10"`
	MaxActivePositions int             `env:"MAX_ACTIVE_POSITIONS" envDefault:"10"`

	ROIBatchBudget time.Duration `env:"ROI_BATCH_BUDGET" envDefault:"25s"`
	ROIBatchPage   int           `env:"ROI_BATCH_PAGE" envDefault:"200"`

	AMQPURL     string `env:"AMQP_URL"`
	NotifyQueue string `env:"NOTIFY_QUEUE" envDefault:"notifications.email"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	S3Bucket        string        `env:"S3_BUCKET"`
	S3Region        string        `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint      string        `env:"S3_ENDPOINT"`
	S3AccessKey     string        `env:"S3_ACCESS_KEY"`
	S3SecretKey     string        `env:"S3_SECRET_KEY"`
	S3PublicBaseURL string        `env:"S3_PUBLIC_BASE_URL"`
	S3PresignTTL    time.Duration `env:"S3_PRESIGN_TTL" envDefault:"168h"`
	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
}

// CronConfig содержит параметры внешнего планировщика начислений roicron.
type CronConfig struct {
	TriggerURL     string        `env:"ROI_TRIGGER_URL"`
	ROISecret      string        `env:"ROI_SECRET"`
	Spec           string        `env:"ROI_CRON_SPEC" envDefault:"0 0 * * * *"`
	RequestTimeout time.Duration `env:"ROI_REQUEST_TIMEOUT" envDefault:"60s"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
}

// loadDotEnv подгружает .env из рабочего каталога. Отсутствие файла не считается ошибкой.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Parse считывает конфигурацию из .env, переменных окружения и флагов командной строки.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if cfg.WithdrawalFeeRate.IsNegative() || cfg.WithdrawalFeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("WITHDRAWAL_FEE_RATE must be in [0, 1), got %s", cfg.WithdrawalFeeRate)
	}
	if cfg.MinWithdrawal.IsNegative() {
		return nil, fmt.Errorf("MIN_WITHDRAWAL must not be negative, got %s", cfg.MinWithdrawal)
	}
	if cfg.ROIBatchBudget <= 0 {
		return nil, fmt.Errorf("ROI_BATCH_BUDGET must be positive, got %s", cfg.ROIBatchBudget)
	}

	return cfg, nil
}

// ParseCron считывает конфигурацию планировщика. Адрес запуска можно передать флагом -r.
func ParseCron() (*CronConfig, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &CronConfig{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envTriggerURL := cfg.TriggerURL

	flag.StringVar(&cfg.TriggerURL, "r", "http://localhost:8080", "investd base URL")

	flag.Parse()

	if envTriggerURL != "" {
		cfg.TriggerURL = envTriggerURL
	}
	if cfg.ROISecret == "" {
		return nil, errors.New("ROI_SECRET is required")
	}

	return cfg, nil
}
