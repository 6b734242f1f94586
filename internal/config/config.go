package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreDriverFirestore = "firestore"
	StoreDriverMemory    = "memory"
)

// Config holds all configuration for the server and the reminder worker.
type Config struct {
	Port    string `mapstructure:"PORT"`
	GinMode string `mapstructure:"GIN_MODE"`

	FirebaseProjectID                string `mapstructure:"FIREBASE_PROJECT_ID"`
	GoogleApplicationCredentials     string `mapstructure:"GOOGLE_APPLICATION_CREDENTIALS"`
	FirebaseServiceAccountJSONBase64 string `mapstructure:"FIREBASE_SERVICE_ACCOUNT_JSON_BASE64"`
	FirebaseWebAPIKey                string `mapstructure:"FIREBASE_WEB_API_KEY"`
	ClientURL                        string `mapstructure:"CLIENT_URL"`

	StoreDriver             string `mapstructure:"STORE_DRIVER"`
	SubscriptionsCollection string `mapstructure:"SUBSCRIPTIONS_COLLECTION"`
	TimeZone                string `mapstructure:"TIME_ZONE"`
	EncryptionKey           string `mapstructure:"ENCRYPTION_KEY"` // Base64 encoded, optional

	RedisAddress  string `mapstructure:"REDIS_ADDRESS"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	AuthRateLimit      int           `mapstructure:"AUTH_RATE_LIMIT"`
	AuthRateWindow     time.Duration `mapstructure:"AUTH_RATE_WINDOW"`
	SessionIdleTimeout time.Duration `mapstructure:"SESSION_IDLE_TIMEOUT"`
	ProjectionWait     time.Duration `mapstructure:"PROJECTION_WAIT"`
	StaticDir          string        `mapstructure:"STATIC_DIR"`

	RabbitMQURL      string        `mapstructure:"RABBITMQ_URL"`
	ReminderQueue    string        `mapstructure:"REMINDER_QUEUE"`
	ReminderLead     time.Duration `mapstructure:"REMINDER_LEAD"`
	ReminderInterval time.Duration `mapstructure:"REMINDER_INTERVAL"`

	SMTPHost string `mapstructure:"SMTP_HOST"`
	SMTPPort int    `mapstructure:"SMTP_PORT"`
	SMTPUser string `mapstructure:"SMTP_USER"`
	SMTPPass string `mapstructure:"SMTP_PASS"`
	MailFrom string `mapstructure:"MAIL_FROM"`
}

var defaults = map[string]interface{}{
	"PORT":                     "8080",
	"GIN_MODE":                 "debug",
	"CLIENT_URL":               "http://localhost:5173",
	"STORE_DRIVER":             StoreDriverFirestore,
	"SUBSCRIPTIONS_COLLECTION": "subscriptions",
	"TIME_ZONE":                "UTC",
	"REDIS_DB":                 0,
	"AUTH_RATE_LIMIT":          5,
	"AUTH_RATE_WINDOW":         "1m",
	"SESSION_IDLE_TIMEOUT":     "30m",
	"PROJECTION_WAIT":          "3s",
	"STATIC_DIR":               "./web/dist",
	"REMINDER_QUEUE":           "subscription-renewals",
	"REMINDER_LEAD":            "72h",
	"REMINDER_INTERVAL":        "1h",
	"SMTP_HOST":                "smtp.mailtrap.io",
	"SMTP_PORT":                2525,
}

// keys lists every setting so that AutomaticEnv can see keys that have no default.
var keys = []string{
	"FIREBASE_PROJECT_ID", "GOOGLE_APPLICATION_CREDENTIALS", "FIREBASE_SERVICE_ACCOUNT_JSON_BASE64",
	"FIREBASE_WEB_API_KEY", "ENCRYPTION_KEY", "REDIS_ADDRESS", "REDIS_PASSWORD", "RABBITMQ_URL",
	"SMTP_USER", "SMTP_PASS", "MAIL_FROM",
}

// LoadConfig reads configuration from the environment, a .env file outside
// release mode, and the YAML file named by PATH_CONFIG if set. Environment
// variables win over the file.
func LoadConfig() (*Config, error) {
	if os.Getenv("GIN_MODE") != "release" {
		// A missing .env is normal outside local development.
		_ = godotenv.Load()
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for key := range defaults {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path := os.Getenv("PATH_CONFIG"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsRelease reports whether gin runs in release mode.
func (c *Config) IsRelease() bool {
	return strings.EqualFold(c.GinMode, "release")
}

// Location resolves TIME_ZONE.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIME_ZONE %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

func (c *Config) hasFirebaseCredentials() bool {
	return c.GoogleApplicationCredentials != "" || c.FirebaseServiceAccountJSONBase64 != ""
}

// ValidateServer checks the settings cmd/server cannot start without.
func (c *Config) ValidateServer() error {
	var errs []error
	if c.FirebaseProjectID == "" {
		errs = append(errs, errors.New("FIREBASE_PROJECT_ID is required"))
	}
	if !c.hasFirebaseCredentials() {
		errs = append(errs, errors.New("either GOOGLE_APPLICATION_CREDENTIALS or FIREBASE_SERVICE_ACCOUNT_JSON_BASE64 is required"))
	}
	if c.FirebaseWebAPIKey == "" {
		errs = append(errs, errors.New("FIREBASE_WEB_API_KEY is required"))
	}
	switch c.StoreDriver {
	case StoreDriverFirestore, StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverFirestore, StoreDriverMemory, c.StoreDriver))
	}
	if c.SubscriptionsCollection == "" {
		errs = append(errs, errors.New("SUBSCRIPTIONS_COLLECTION must not be empty"))
	}
	return errors.Join(errs...)
}

// ValidateReminder checks the settings cmd/reminder cannot start without.
func (c *Config) ValidateReminder() error {
	var errs []error
	if c.FirebaseProjectID == "" {
		errs = append(errs, errors.New("FIREBASE_PROJECT_ID is required"))
	}
	if !c.hasFirebaseCredentials() {
		errs = append(errs, errors.New("either GOOGLE_APPLICATION_CREDENTIALS or FIREBASE_SERVICE_ACCOUNT_JSON_BASE64 is required"))
	}
	if c.RabbitMQURL == "" {
		errs = append(errs, errors.New("RABBITMQ_URL is required"))
	}
	if c.SMTPUser == "" || c.SMTPPass == "" {
		errs = append(errs, errors.New("SMTP_USER and SMTP_PASS are required"))
	}
	if c.MailFrom == "" {
		errs = append(errs, errors.New("MAIL_FROM is required"))
	}
	if c.ReminderInterval <= 0 {
		errs = append(errs, errors.New("REMINDER_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}
