package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	StorePath      string `validate:"required"`
	LogLevel       string
	SyncWindowDays int `validate:"min=1,max=3650"`
	SentryDSN      string

	Reconnect  ReconnectConfig
	Classifier ClassifierConfig
	Notify     NotifyConfig
	Archive    ArchiveConfig

	// Accounts
	Accounts []AccountConfig `validate:"required,min=1,dive"`
}

// AccountConfig holds configuration for a single mailbox account
type AccountConfig struct {
	ID string `mapstructure:"id" validate:"required,excludesall=/ "`

	// IMAP settings
	IMAPHost     string `mapstructure:"imap_host" validate:"required"`
	IMAPPort     int    `mapstructure:"imap_port" validate:"min=1,max=65535"`
	IMAPTLS      bool   `mapstructure:"imap_tls"`
	IMAPUsername string `mapstructure:"imap_username" validate:"required"`
	IMAPPassword string `mapstructure:"imap_password" validate:"required"`
	Folder       string `mapstructure:"folder" validate:"required"`
}

// ReconnectConfig controls the per-account reconnect policy.
type ReconnectConfig struct {
	Enabled     bool
	MaxAttempts int `validate:"min=0"`
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// ClassifierConfig configures the classification oracle. An empty APIKey
// disables classification.
type ClassifierConfig struct {
	APIKey       string
	Model        string
	URL          string `validate:"omitempty,url"`
	MaxBodyChars int    `validate:"min=1"`
	Timeout      time.Duration
}

// NotifyConfig lists the notification channels. Each channel is enabled by
// its address setting.
type NotifyConfig struct {
	SlackWebhookURL string `validate:"omitempty,url"`
	WebhookURL      string `validate:"omitempty,url"`

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string   `validate:"omitempty,email"`
	EmailTo      []string `validate:"omitempty,dive,email"`

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string
}

// ArchiveConfig configures raw message archiving to S3-compatible storage.
type ArchiveConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// LoadConfig loads configuration from environment variables, an optional
// .env file, and an optional YAML accounts file named by CONFIG_FILE.
func LoadConfig() (*Config, error) {
	// A missing .env is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		StorePath:      getEnv("STORE_PATH", "/data/mailsync.db"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		SyncWindowDays: getEnvInt("SYNC_WINDOW_DAYS", 30),
		SentryDSN:      getEnv("SENTRY_DSN", ""),
		Reconnect: ReconnectConfig{
			Enabled:     getEnvBool("RECONNECT_ENABLED", true),
			MaxAttempts: getEnvInt("RECONNECT_MAX_ATTEMPTS", 0),
			BaseDelay:   getEnvDuration("RECONNECT_BASE_DELAY", 5*time.Second),
			MaxDelay:    getEnvDuration("RECONNECT_MAX_DELAY", 5*time.Minute),
		},
		Classifier: ClassifierConfig{
			APIKey:       getEnv("CLASSIFIER_API_KEY", ""),
			Model:        getEnv("CLASSIFIER_MODEL", "claude-3-5-haiku-latest"),
			URL:          getEnv("CLASSIFIER_URL", "https://api.anthropic.com/v1/messages"),
			MaxBodyChars: getEnvInt("CLASSIFIER_MAX_BODY_CHARS", 2000),
			Timeout:      getEnvDuration("CLASSIFIER_TIMEOUT", 20*time.Second),
		},
		Notify: NotifyConfig{
			SlackWebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
			WebhookURL:      getEnv("WEBHOOK_URL", ""),
			SMTPHost:        getEnv("NOTIFY_SMTP_HOST", ""),
			SMTPPort:        getEnvInt("NOTIFY_SMTP_PORT", 587),
			SMTPUsername:    getEnv("NOTIFY_SMTP_USERNAME", ""),
			SMTPPassword:    getEnv("NOTIFY_SMTP_PASSWORD", ""),
			EmailFrom:       getEnv("NOTIFY_EMAIL_FROM", ""),
			EmailTo:         splitList(getEnv("NOTIFY_EMAIL_TO", "")),
			RedisAddr:       getEnv("REDIS_ADDR", ""),
			RedisPassword:   getEnv("REDIS_PASSWORD", ""),
			RedisDB:         getEnvInt("REDIS_DB", 0),
			RedisChannel:    getEnv("REDIS_CHANNEL", "mailsync:interested"),
		},
		Archive: ArchiveConfig{
			Bucket:    getEnv("ARCHIVE_S3_BUCKET", ""),
			Region:    getEnv("ARCHIVE_S3_REGION", "us-east-1"),
			Endpoint:  getEnv("ARCHIVE_S3_ENDPOINT", ""),
			AccessKey: getEnv("ARCHIVE_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("ARCHIVE_S3_SECRET_KEY", ""),
		},
	}

	var accounts []AccountConfig
	var err error
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		accounts, err = loadAccountsFile(path)
	} else {
		accounts, err = loadAccounts()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	for i := range accounts {
		secret, err := resolveSecret(accounts[i].IMAPPassword)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", accounts[i].ID, err)
		}
		accounts[i].IMAPPassword = secret
	}

	cfg.Accounts = accounts
	return cfg, nil
}

// loadAccounts loads account configurations from environment variables
func loadAccounts() ([]AccountConfig, error) {
	var accounts []AccountConfig

	// Single account form (IMAP_*)
	if getEnv("IMAP_HOST", "") != "" {
		accounts = append(accounts, accountFromEnv("", getEnv("ACCOUNT_ID", "default")))
		return accounts, nil
	}

	// Multiple accounts (ACCOUNT_1_*, ACCOUNT_2_*, etc.)
	for num := 1; ; num++ {
		prefix := fmt.Sprintf("ACCOUNT_%d_", num)
		id := getEnv(prefix+"ID", "")
		if id == "" {
			break
		}
		accounts = append(accounts, accountFromEnv(prefix, id))
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts found in environment variables")
	}

	return accounts, nil
}

func accountFromEnv(prefix, id string) AccountConfig {
	return AccountConfig{
		ID:           id,
		IMAPHost:     getEnv(prefix+"IMAP_HOST", ""),
		IMAPPort:     getEnvInt(prefix+"IMAP_PORT", 993),
		IMAPTLS:      getEnvBool(prefix+"IMAP_TLS", true),
		IMAPUsername: getEnv(prefix+"IMAP_USERNAME", ""),
		IMAPPassword: getEnv(prefix+"IMAP_PASSWORD", ""),
		Folder:       getEnv(prefix+"IMAP_FOLDER", "INBOX"),
	}
}

// loadAccountsFile reads the accounts list from a YAML file.
func loadAccountsFile(path string) ([]AccountConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var accounts []AccountConfig
	if err := v.UnmarshalKey("accounts", &accounts); err != nil {
		return nil, fmt.Errorf("parsing accounts in %s: %w", path, err)
	}

	for i := range accounts {
		if accounts[i].IMAPPort == 0 {
			accounts[i].IMAPPort = 993
		}
		if accounts[i].Folder == "" {
			accounts[i].Folder = "INBOX"
		}
		// Unset imap_tls means implicit TLS.
		if !v.IsSet(fmt.Sprintf("accounts.%d.imap_tls", i)) {
			accounts[i].IMAPTLS = true
		}
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts in %s", path)
	}
	return accounts, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetAccountByID finds an account by id
func (c *Config) GetAccountByID(id string) (*AccountConfig, error) {
	for i := range c.Accounts {
		if c.Accounts[i].ID == id {
			return &c.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("account not found: %s", id)
}

// AccountIDs returns a list of all account ids
func (c *Config) AccountIDs() []string {
	ids := make([]string, len(c.Accounts))
	for i := range c.Accounts {
		ids[i] = c.Accounts[i].ID
	}
	return ids
}
