package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Storage    StorageConfig
	OCR        OCRConfig
	Classifier ClassifierConfig
	Currency   CurrencyConfig
	ERP        ERPConfig
	Pipeline   PipelineConfig
	Approval   ApprovalConfig
	Event      EventConfig
	Telemetry  TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64 // upload size cap
	CORSAllowOrigins  []string
	CORSAllowMethods  []string
	CORSAllowHeaders  []string
	TrustedProxies    []string
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// StorageConfig holds object storage settings for original document files
type StorageConfig struct {
	Provider  string // s3, memory
	Bucket    string
	Region    string
	Endpoint  string // custom endpoint for MinIO and localstack
	AccessKey string
	SecretKey string
	PathStyle bool
}

// OCRConfig holds the Document AI text extraction settings
type OCRConfig struct {
	Provider        string // documentai, stub
	ProjectID       string
	Location        string // eu, us
	ProcessorID     string
	CredentialsFile string
	Timeout         time.Duration
}

// ClassifierConfig holds the LLM document classification settings
type ClassifierConfig struct {
	Provider    string // openai, stub
	APIKey      string
	BaseURL     string // override for Azure and compatible gateways
	Model       string
	Temperature float32
	MaxRetries  int
	Timeout     time.Duration
}

// CurrencyConfig holds exchange rate lookup settings
type CurrencyConfig struct {
	BaseCurrency string
	APIEndpoint  string
	APIKey       string
	CacheTTL     time.Duration
	Timeout      time.Duration
}

// ERPConfig holds the downstream accounting system connection
type ERPConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

// PipelineConfig holds document pipeline behavior settings
type PipelineConfig struct {
	VoucherSeries   string // default voucher series letter
	Synchronous     bool   // process uploads inline instead of in background
	ResumeInterval  time.Duration
	ResumeOlderThan time.Duration
	SplitEnabled    bool
}

// ApprovalConfig holds approval workflow settings
type ApprovalConfig struct {
	SweepInterval     time.Duration // how often overdue requests are escalated
	EscalationTimeout time.Duration
}

// EventConfig holds domain event processing configuration
type EventConfig struct {
	ProcessorEnabled bool
	BatchSize        int
	PollInterval     time.Duration
	MaxRetries       int
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // 0.0-1.0, 1.0 = 100%
	ServiceName       string
	Insecure          bool // non-TLS connection (development only)
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with DOCLEDGER_ prefix (e.g., DOCLEDGER_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("DOCLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
		},
		Storage: StorageConfig{
			Provider:  v.GetString("storage.provider"),
			Bucket:    v.GetString("storage.bucket"),
			Region:    v.GetString("storage.region"),
			Endpoint:  v.GetString("storage.endpoint"),
			AccessKey: v.GetString("storage.access_key"),
			SecretKey: v.GetString("storage.secret_key"),
			PathStyle: v.GetBool("storage.path_style"),
		},
		OCR: OCRConfig{
			Provider:        v.GetString("ocr.provider"),
			ProjectID:       v.GetString("ocr.project_id"),
			Location:        v.GetString("ocr.location"),
			ProcessorID:     v.GetString("ocr.processor_id"),
			CredentialsFile: v.GetString("ocr.credentials_file"),
			Timeout:         v.GetDuration("ocr.timeout"),
		},
		Classifier: ClassifierConfig{
			Provider:    v.GetString("classifier.provider"),
			APIKey:      v.GetString("classifier.api_key"),
			BaseURL:     v.GetString("classifier.base_url"),
			Model:       v.GetString("classifier.model"),
			Temperature: float32(v.GetFloat64("classifier.temperature")),
			MaxRetries:  v.GetInt("classifier.max_retries"),
			Timeout:     v.GetDuration("classifier.timeout"),
		},
		Currency: CurrencyConfig{
			BaseCurrency: v.GetString("currency.base_currency"),
			APIEndpoint:  v.GetString("currency.api_endpoint"),
			APIKey:       v.GetString("currency.api_key"),
			CacheTTL:     v.GetDuration("currency.cache_ttl"),
			Timeout:      v.GetDuration("currency.timeout"),
		},
		ERP: ERPConfig{
			BaseURL:    v.GetString("erp.base_url"),
			APIKey:     v.GetString("erp.api_key"),
			Timeout:    v.GetDuration("erp.timeout"),
			MaxRetries: v.GetInt("erp.max_retries"),
		},
		Pipeline: PipelineConfig{
			VoucherSeries:   v.GetString("pipeline.voucher_series"),
			Synchronous:     v.GetBool("pipeline.synchronous"),
			ResumeInterval:  v.GetDuration("pipeline.resume_interval"),
			ResumeOlderThan: v.GetDuration("pipeline.resume_older_than"),
			SplitEnabled:    v.GetBool("pipeline.split_enabled"),
		},
		Approval: ApprovalConfig{
			SweepInterval:     v.GetDuration("approval.sweep_interval"),
			EscalationTimeout: v.GetDuration("approval.escalation_timeout"),
		},
		Event: EventConfig{
			ProcessorEnabled: v.GetBool("event.processor_enabled"),
			BatchSize:        v.GetInt("event.batch_size"),
			PollInterval:     v.GetDuration("event.poll_interval"),
			MaxRetries:       v.GetInt("event.max_retries"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "docledger"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "docledger"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 25 << 20 // 25MB, scanned PDFs get large
	}
	// NOTE: CORS origins are intentionally not given a default fallback to "*".
	// An empty list means no cross-origin requests are allowed until explicitly
	// configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "X-Company-ID"}
	}
	if cfg.Storage.Provider == "" {
		cfg.Storage.Provider = "s3"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "docledger-documents"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "eu-north-1"
	}
	if cfg.OCR.Provider == "" {
		cfg.OCR.Provider = "documentai"
	}
	if cfg.OCR.Location == "" {
		cfg.OCR.Location = "eu"
	}
	if cfg.OCR.Timeout == 0 {
		cfg.OCR.Timeout = 60 * time.Second
	}
	if cfg.Classifier.Provider == "" {
		cfg.Classifier.Provider = "openai"
	}
	if cfg.Classifier.Model == "" {
		cfg.Classifier.Model = "gpt-4o"
	}
	if cfg.Classifier.MaxRetries == 0 {
		cfg.Classifier.MaxRetries = 2
	}
	if cfg.Classifier.Timeout == 0 {
		cfg.Classifier.Timeout = 90 * time.Second
	}
	if cfg.Currency.BaseCurrency == "" {
		cfg.Currency.BaseCurrency = "SEK"
	}
	if cfg.Currency.CacheTTL == 0 {
		cfg.Currency.CacheTTL = 12 * time.Hour
	}
	if cfg.Currency.Timeout == 0 {
		cfg.Currency.Timeout = 10 * time.Second
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 300
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if cfg.ERP.BaseURL == "" {
		cfg.ERP.BaseURL = "http://localhost:9090"
	}
	if cfg.ERP.Timeout == 0 {
		cfg.ERP.Timeout = 30 * time.Second
	}
	if cfg.ERP.MaxRetries == 0 {
		cfg.ERP.MaxRetries = 3
	}
	if cfg.Pipeline.VoucherSeries == "" {
		cfg.Pipeline.VoucherSeries = "A"
	}
	if cfg.Pipeline.ResumeInterval == 0 {
		cfg.Pipeline.ResumeInterval = 5 * time.Minute
	}
	if cfg.Pipeline.ResumeOlderThan == 0 {
		cfg.Pipeline.ResumeOlderThan = 10 * time.Minute
	}
	if cfg.Approval.SweepInterval == 0 {
		cfg.Approval.SweepInterval = time.Hour
	}
	if cfg.Approval.EscalationTimeout == 0 {
		cfg.Approval.EscalationTimeout = 72 * time.Hour
	}
	if cfg.Event.BatchSize == 0 {
		cfg.Event.BatchSize = 100
	}
	if cfg.Event.PollInterval == 0 {
		cfg.Event.PollInterval = 5 * time.Second
	}
	if cfg.Event.MaxRetries == 0 {
		cfg.Event.MaxRetries = 5
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "docledger"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Storage.Provider {
	case "s3", "memory":
	default:
		return fmt.Errorf("storage.provider must be s3 or memory, got %q", c.Storage.Provider)
	}
	switch c.OCR.Provider {
	case "documentai", "stub":
	default:
		return fmt.Errorf("ocr.provider must be documentai or stub, got %q", c.OCR.Provider)
	}
	switch c.Classifier.Provider {
	case "openai", "stub":
	default:
		return fmt.Errorf("classifier.provider must be openai or stub, got %q", c.Classifier.Provider)
	}
	if len(c.Currency.BaseCurrency) != 3 {
		return fmt.Errorf("currency.base_currency must be a 3-letter ISO code, got %q", c.Currency.BaseCurrency)
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Storage.Provider == "memory" {
			return fmt.Errorf("storage.provider cannot be 'memory' in production")
		}
		if c.OCR.Provider == "stub" {
			return fmt.Errorf("ocr.provider cannot be 'stub' in production")
		}
		if c.Classifier.Provider == "stub" {
			return fmt.Errorf("classifier.provider cannot be 'stub' in production")
		}
		if c.Classifier.Provider == "openai" && c.Classifier.APIKey == "" {
			return fmt.Errorf("classifier.api_key is required in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis address host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
