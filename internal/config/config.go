package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Client  ClientConfig
	Server  ServerConfig
	DB      DBConfig
	JWT     JWTConfig
	S3      S3Config
	Log     LogConfig
	Queue   QueueConfig
	Cache   CacheConfig
	Batch   BatchConfig
	Notify  NotifyConfig
	Cleanup CleanupConfig
}

// ClientConfig holds settings for the document extraction API client.
type ClientConfig struct {
	APIKey           string `mapstructure:"api_key"`
	Environment      string `mapstructure:"environment"`
	BaseURL          string `mapstructure:"base_url"`
	ParseModel       string `mapstructure:"parse_model"`
	ExtractModel     string `mapstructure:"extract_model"`
	MaxRetries       int    `mapstructure:"max_retries"`
	TimeoutSecs      int    `mapstructure:"timeout_secs"`
	PollIntervalSecs int    `mapstructure:"poll_interval_secs"`
	PollMaxSecs      int    `mapstructure:"poll_max_secs"`
	JobTimeoutSecs   int    `mapstructure:"job_timeout_secs"`
	AsyncThresholdMB int64  `mapstructure:"async_threshold_mb"`
}

// Timeout returns the per-request HTTP timeout.
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// PollInterval returns the first delay between async job polls.
func (c *ClientConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// PollMax returns the cap on the delay between async job polls.
func (c *ClientConfig) PollMax() time.Duration {
	return time.Duration(c.PollMaxSecs) * time.Second
}

// JobTimeout returns how long to wait for an async job.
func (c *ClientConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSecs) * time.Second
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`

	// Connections are recycled after MaxLifetimeMins; 0 keeps them forever.
	MaxLifetimeMins int `mapstructure:"max_lifetime_mins"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// JWTConfig holds gateway token settings.
type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// S3Config holds object storage settings for uploaded documents.
type S3Config struct {
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	MaxFileSizeMB int64  `mapstructure:"max_file_size_mb"`
	PresignExpiry int64  `mapstructure:"presign_expiry"`
	// SendURL hands the API a presigned URL instead of uploading bytes.
	// Disable for endpoints the API cannot reach, such as a local MinIO.
	SendURL bool `mapstructure:"send_url"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// QueueConfig holds job worker settings.
type QueueConfig struct {
	PollIntervalSecs int `mapstructure:"poll_interval_secs"`
	MaxRetries       int `mapstructure:"max_retries"`
	Concurrency      int `mapstructure:"concurrency"`
	JobTimeoutMins   int `mapstructure:"job_timeout_mins"`
}

// CacheConfig holds parse result cache settings. Size or TTL of zero disables it.
type CacheConfig struct {
	Size int           `mapstructure:"size"`
	TTL  time.Duration `mapstructure:"ttl"`
}

// BatchConfig holds defaults for batch processing.
type BatchConfig struct {
	Concurrency     int  `mapstructure:"concurrency"`
	ContinueOnError bool `mapstructure:"continue_on_error"`
}

// NotifyConfig holds job completion notification settings.
type NotifyConfig struct {
	Provider    string `mapstructure:"provider"`
	Region      string `mapstructure:"region"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
	BaseURL     string `mapstructure:"base_url"`
}

// CleanupConfig holds retention settings for finished jobs.
type CleanupConfig struct {
	Schedule      string `mapstructure:"schedule"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// Load reads configuration from environment variables with the ADE_ prefix.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads an optional config file (yaml, json or toml) and overlays
// environment variables with the ADE_ prefix.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ADE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	// AutomaticEnv only resolves keys viper already knows about, and nested
	// keys under Get* need explicit bindings.
	for _, key := range v.AllKeys() {
		env := "ADE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, env)
	}
	// VISION_AGENT_API_KEY is the variable name the vendor's own tooling reads.
	_ = v.BindEnv("client.api_key", "ADE_CLIENT_API_KEY", "VISION_AGENT_API_KEY")

	cfg := &Config{}

	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("ADE_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Client = ClientConfig{
		APIKey:           v.GetString("client.api_key"),
		Environment:      v.GetString("client.environment"),
		BaseURL:          v.GetString("client.base_url"),
		ParseModel:       v.GetString("client.parse_model"),
		ExtractModel:     v.GetString("client.extract_model"),
		MaxRetries:       v.GetInt("client.max_retries"),
		TimeoutSecs:      v.GetInt("client.timeout_secs"),
		PollIntervalSecs: v.GetInt("client.poll_interval_secs"),
		PollMaxSecs:      v.GetInt("client.poll_max_secs"),
		JobTimeoutSecs:   v.GetInt("client.job_timeout_secs"),
		AsyncThresholdMB: v.GetInt64("client.async_threshold_mb"),
	}
	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
		CORSOrigins:  splitList(v.GetString("server.cors_origins")),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),

		MaxLifetimeMins: v.GetInt("db.max_lifetime_mins"),
	}
	cfg.JWT = JWTConfig{
		Secret: v.GetString("jwt.secret"),
		Issuer: v.GetString("jwt.issuer"),
		TTL:    v.GetDuration("jwt.ttl"),
	}
	cfg.S3 = S3Config{
		Region:        v.GetString("s3.region"),
		Bucket:        v.GetString("s3.bucket"),
		Endpoint:      v.GetString("s3.endpoint"),
		AccessKey:     v.GetString("s3.access_key"),
		SecretKey:     v.GetString("s3.secret_key"),
		MaxFileSizeMB: v.GetInt64("s3.max_file_size_mb"),
		PresignExpiry: v.GetInt64("s3.presign_expiry"),
		SendURL:       v.GetBool("s3.send_url"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	cfg.Queue = QueueConfig{
		PollIntervalSecs: v.GetInt("queue.poll_interval_secs"),
		MaxRetries:       v.GetInt("queue.max_retries"),
		Concurrency:      v.GetInt("queue.concurrency"),
		JobTimeoutMins:   v.GetInt("queue.job_timeout_mins"),
	}
	cfg.Cache = CacheConfig{
		Size: v.GetInt("cache.size"),
		TTL:  v.GetDuration("cache.ttl"),
	}
	cfg.Batch = BatchConfig{
		Concurrency:     v.GetInt("batch.concurrency"),
		ContinueOnError: v.GetBool("batch.continue_on_error"),
	}
	cfg.Notify = NotifyConfig{
		Provider:    v.GetString("notify.provider"),
		Region:      v.GetString("notify.region"),
		FromAddress: v.GetString("notify.from_address"),
		FromName:    v.GetString("notify.from_name"),
		BaseURL:     v.GetString("notify.base_url"),
	}
	cfg.Cleanup = CleanupConfig{
		Schedule:      v.GetString("cleanup.schedule"),
		RetentionDays: v.GetInt("cleanup.retention_days"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Client defaults
	v.SetDefault("client.api_key", "")
	v.SetDefault("client.environment", "production")
	v.SetDefault("client.base_url", "")
	v.SetDefault("client.parse_model", "dpt-2-latest")
	v.SetDefault("client.extract_model", "extract-latest")
	v.SetDefault("client.max_retries", 3)
	v.SetDefault("client.timeout_secs", 480)
	v.SetDefault("client.poll_interval_secs", 2)
	v.SetDefault("client.poll_max_secs", 30)
	v.SetDefault("client.job_timeout_secs", 1800)
	v.SetDefault("client.async_threshold_mb", 10)

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.cors_origins", "http://localhost:3000,http://127.0.0.1:3000")

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "adekit")
	v.SetDefault("db.password", "adekit_secret")
	v.SetDefault("db.name", "adekit")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)
	v.SetDefault("db.max_lifetime_mins", 30)

	// JWT defaults
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.issuer", "adekit")
	v.SetDefault("jwt.ttl", "720h")

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "adekit-documents")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.max_file_size_mb", 100)
	v.SetDefault("s3.presign_expiry", 3600)
	v.SetDefault("s3.send_url", true)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Queue defaults
	v.SetDefault("queue.poll_interval_secs", 5)
	v.SetDefault("queue.max_retries", 5)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.job_timeout_mins", 30)

	// Cache defaults
	v.SetDefault("cache.size", 128)
	v.SetDefault("cache.ttl", "1h")

	// Batch defaults
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.continue_on_error", true)

	// Notify defaults
	v.SetDefault("notify.provider", "noop")
	v.SetDefault("notify.region", "us-east-1")
	v.SetDefault("notify.from_address", "noreply@adekit.local")
	v.SetDefault("notify.from_name", "adekit")
	v.SetDefault("notify.base_url", "http://localhost:8080")

	// Cleanup defaults
	v.SetDefault("cleanup.schedule", "0 3 * * *")
	v.SetDefault("cleanup.retention_days", 30)
}

func splitList(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
