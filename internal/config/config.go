package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Log        LogConfig        `mapstructure:"log"`
	Security   SecurityConfig   `mapstructure:"security"`
	Email      EmailConfig      `mapstructure:"email"`
	Recipients RecipientsConfig `mapstructure:"recipients"`
	Send       SendConfig       `mapstructure:"send"`
	History    HistoryConfig    `mapstructure:"history"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// MaxUploadSize caps multipart recipient uploads, in bytes
	MaxUploadSize int64 `mapstructure:"max_upload_size"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int    `mapstructure:"max_connections"`
	// AutoMigrate applies pending schema migrations when the server starts
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// StatusTTL is how long the last published state snapshot is kept
	StatusTTL time.Duration `mapstructure:"status_ttl"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
}

// RateLimitingConfig holds rate limiting configuration for mutating API routes
type RateLimitingConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

// EmailConfig holds delivery provider configuration
type EmailConfig struct {
	// Provider is one of "emailjs", "gmail", "resend" or "log"
	Provider string `mapstructure:"provider"`
	// FromName is the sender label attached to every message
	FromName string `mapstructure:"from_name"`
	// Subject is the subject line attached to every message
	Subject string `mapstructure:"subject"`
	// BodyFormat is "text" (verbatim) or "markdown" (verbatim text plus rendered HTML)
	BodyFormat string `mapstructure:"body_format"`

	EmailJS EmailJSConfig     `mapstructure:"emailjs"`
	Gmail   GmailEmailConfig  `mapstructure:"gmail"`
	Resend  ResendEmailConfig `mapstructure:"resend"`
}

// EmailJSConfig holds EmailJS REST API configuration
type EmailJSConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	ServiceID  string `mapstructure:"service_id"`
	TemplateID string `mapstructure:"template_id"`
	PublicKey  string `mapstructure:"public_key"`
	// PrivateKey is sent as accessToken when the EmailJS account requires it
	PrivateKey string `mapstructure:"private_key"`
}

// GmailEmailConfig holds Gmail API configuration
type GmailEmailConfig struct {
	// CredentialsJSON is the service account credentials JSON content
	CredentialsJSON string `mapstructure:"credentials_json"`
	// ClientID for OAuth2 token-based auth (alternative to service account)
	ClientID string `mapstructure:"client_id"`
	// ClientSecret for OAuth2 token-based auth
	ClientSecret string `mapstructure:"client_secret"`
	// RefreshToken for OAuth2 token-based auth
	RefreshToken string `mapstructure:"refresh_token"`
	// SenderAddress is the "From" email address
	SenderAddress string `mapstructure:"sender_address"`
}

// ResendEmailConfig holds Resend configuration
type ResendEmailConfig struct {
	APIKey        string `mapstructure:"api_key"`
	SenderAddress string `mapstructure:"sender_address"`
}

// RecipientsConfig holds recipient source configuration
type RecipientsConfig struct {
	// Source is the remote source used by refresh: "sheets" or "static"
	Source string `mapstructure:"source"`
	// Dedupe drops repeated addresses, keeping the first occurrence
	Dedupe bool `mapstructure:"dedupe"`
	// AutoRefreshInterval is the period of the optional background refresh
	AutoRefreshInterval time.Duration `mapstructure:"auto_refresh_interval"`
	// LoadOnStart fetches the remote list once when the service starts
	LoadOnStart bool `mapstructure:"load_on_start"`
	// Static is the mock list served by the static source
	Static []string     `mapstructure:"static"`
	Sheets SheetsConfig `mapstructure:"sheets"`
}

// SheetsConfig holds Google Sheets source configuration
type SheetsConfig struct {
	SpreadsheetID string `mapstructure:"spreadsheet_id"`
	SheetName     string `mapstructure:"sheet_name"`
	Column        string `mapstructure:"column"`
	HeaderRows    int    `mapstructure:"header_rows"`
	// APIKey is used for publicly readable spreadsheets
	APIKey string `mapstructure:"api_key"`
	// CredentialsJSON is a service account JSON, used when APIKey is empty
	CredentialsJSON string `mapstructure:"credentials_json"`
}

// SendConfig holds send loop configuration
type SendConfig struct {
	// Interval is the pacing interval between delivery attempts
	Interval time.Duration `mapstructure:"interval"`
	// FailurePolicy is "continue" or "abort"
	FailurePolicy string `mapstructure:"failure_policy"`
	// Timeout bounds a single delivery call
	Timeout time.Duration `mapstructure:"timeout"`
}

// HistoryConfig controls run history persistence
type HistoryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set config file name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/bulkmail")

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables
	v.SetEnvPrefix("BULKMAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks enumerated settings
func (c *Config) Validate() error {
	switch c.Email.Provider {
	case "emailjs", "gmail", "resend", "log":
	default:
		return fmt.Errorf("invalid email.provider %q", c.Email.Provider)
	}
	switch c.Email.BodyFormat {
	case "text", "markdown":
	default:
		return fmt.Errorf("invalid email.body_format %q", c.Email.BodyFormat)
	}
	switch c.Recipients.Source {
	case "sheets", "static":
	default:
		return fmt.Errorf("invalid recipients.source %q", c.Recipients.Source)
	}
	switch c.Send.FailurePolicy {
	case "continue", "abort":
	default:
		return fmt.Errorf("invalid send.failure_policy %q", c.Send.FailurePolicy)
	}
	if c.Send.Interval < 0 {
		return fmt.Errorf("send.interval must not be negative")
	}
	if c.History.Enabled && !c.Database.Enabled {
		return fmt.Errorf("history.enabled requires database.enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.max_upload_size", 10<<20)

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "bulkmail")
	v.SetDefault("database.user", "bulkmail")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.auto_migrate", true)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.status_ttl", "24h")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Rate limiting applies to the mutating API routes, and needs Redis
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.limit", 30)
	v.SetDefault("security.rate_limiting.window", "1m")

	// Email defaults
	v.SetDefault("email.provider", "log")
	v.SetDefault("email.from_name", "Bulkmail")
	v.SetDefault("email.subject", "")
	v.SetDefault("email.body_format", "text")
	v.SetDefault("email.emailjs.base_url", "https://api.emailjs.com")
	v.SetDefault("email.emailjs.service_id", "")
	v.SetDefault("email.emailjs.template_id", "")
	v.SetDefault("email.emailjs.public_key", "")
	v.SetDefault("email.emailjs.private_key", "")
	v.SetDefault("email.gmail.sender_address", "")
	v.SetDefault("email.resend.api_key", "")
	v.SetDefault("email.resend.sender_address", "")

	// Recipient defaults
	v.SetDefault("recipients.source", "static")
	v.SetDefault("recipients.dedupe", false)
	v.SetDefault("recipients.auto_refresh_interval", "5m")
	v.SetDefault("recipients.load_on_start", true)
	v.SetDefault("recipients.static", []string{})
	v.SetDefault("recipients.sheets.spreadsheet_id", "")
	v.SetDefault("recipients.sheets.sheet_name", "Sayfa1")
	v.SetDefault("recipients.sheets.column", "A")
	v.SetDefault("recipients.sheets.header_rows", 1)
	v.SetDefault("recipients.sheets.api_key", "")
	v.SetDefault("recipients.sheets.credentials_json", "")

	// Send loop defaults
	v.SetDefault("send.interval", "1s")
	v.SetDefault("send.failure_policy", "continue")
	v.SetDefault("send.timeout", "30s")

	v.SetDefault("history.enabled", false)
}
