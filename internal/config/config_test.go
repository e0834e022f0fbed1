package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		StorePath:      "/tmp/mailsync.db",
		SyncWindowDays: 30,
		Reconnect:      ReconnectConfig{Enabled: true, BaseDelay: time.Second, MaxDelay: time.Minute},
		Classifier:     ClassifierConfig{MaxBodyChars: 2000},
		Accounts: []AccountConfig{{
			ID:           "work",
			IMAPHost:     "imap.example.com",
			IMAPPort:     993,
			IMAPTLS:      true,
			IMAPUsername: "me@example.com",
			IMAPPassword: "secret",
			Folder:       "INBOX",
		}},
	}
}

func TestLoadConfigMultipleAccounts(t *testing.T) {
	t.Setenv("ACCOUNT_1_ID", "work")
	t.Setenv("ACCOUNT_1_IMAP_HOST", "imap.work.example")
	t.Setenv("ACCOUNT_1_IMAP_USERNAME", "me@work.example")
	t.Setenv("ACCOUNT_1_IMAP_PASSWORD", "pw1")
	t.Setenv("ACCOUNT_2_ID", "home")
	t.Setenv("ACCOUNT_2_IMAP_HOST", "imap.home.example")
	t.Setenv("ACCOUNT_2_IMAP_PORT", "143")
	t.Setenv("ACCOUNT_2_IMAP_TLS", "false")
	t.Setenv("ACCOUNT_2_IMAP_USERNAME", "me@home.example")
	t.Setenv("ACCOUNT_2_IMAP_PASSWORD", "pw2")
	t.Setenv("ACCOUNT_2_IMAP_FOLDER", "Archive")
	t.Setenv("SYNC_WINDOW_DAYS", "7")
	t.Setenv("NOTIFY_EMAIL_TO", "a@example.com, b@example.com")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Len(t, cfg.Accounts, 2)
	assert.Equal(t, []string{"work", "home"}, cfg.AccountIDs())
	assert.Equal(t, 993, cfg.Accounts[0].IMAPPort)
	assert.True(t, cfg.Accounts[0].IMAPTLS)
	assert.Equal(t, "INBOX", cfg.Accounts[0].Folder)
	assert.Equal(t, 143, cfg.Accounts[1].IMAPPort)
	assert.False(t, cfg.Accounts[1].IMAPTLS)
	assert.Equal(t, "Archive", cfg.Accounts[1].Folder)
	assert.Equal(t, 7, cfg.SyncWindowDays)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Notify.EmailTo)
	assert.Equal(t, 5*time.Second, cfg.Reconnect.BaseDelay)

	acc, err := cfg.GetAccountByID("home")
	require.NoError(t, err)
	assert.Equal(t, "imap.home.example", acc.IMAPHost)

	_, err = cfg.GetAccountByID("missing")
	assert.Error(t, err)
}

func TestLoadConfigNoAccounts(t *testing.T) {
	t.Setenv("IMAP_HOST", "")
	t.Setenv("ACCOUNT_1_ID", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	content := `accounts:
  - id: work
    imap_host: imap.work.example
    imap_username: me@work.example
    imap_password: pw
  - id: plain
    imap_host: imap.plain.example
    imap_port: 143
    imap_tls: false
    imap_username: me@plain.example
    imap_password: pw
    folder: Lists
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Len(t, cfg.Accounts, 2)

	assert.Equal(t, 993, cfg.Accounts[0].IMAPPort)
	assert.True(t, cfg.Accounts[0].IMAPTLS)
	assert.Equal(t, "INBOX", cfg.Accounts[0].Folder)
	assert.False(t, cfg.Accounts[1].IMAPTLS)
	assert.Equal(t, "Lists", cfg.Accounts[1].Folder)
}

func TestKeyringPassword(t *testing.T) {
	orig := keyringGet
	t.Cleanup(func() { keyringGet = orig })
	keyringGet = func(key string) (string, error) {
		assert.Equal(t, "work-imap", key)
		return "from-keyring", nil
	}

	t.Setenv("IMAP_HOST", "imap.example.com")
	t.Setenv("IMAP_USERNAME", "me@example.com")
	t.Setenv("IMAP_PASSWORD", "keyring:work-imap")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Accounts[0].ID)
	assert.Equal(t, "from-keyring", cfg.Accounts[0].IMAPPassword)

	_, err = resolveSecret("keyring:")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing host", mutate: func(c *Config) { c.Accounts[0].IMAPHost = "" }, wantErr: "IMAPHost is required"},
		{name: "bad port", mutate: func(c *Config) { c.Accounts[0].IMAPPort = 70000 }, wantErr: "IMAPPort must be at most 65535"},
		{name: "no accounts", mutate: func(c *Config) { c.Accounts = nil }, wantErr: "Accounts is required"},
		{name: "duplicate ids", mutate: func(c *Config) { c.Accounts = append(c.Accounts, c.Accounts[0]) }, wantErr: "duplicate account id"},
		{name: "bad webhook", mutate: func(c *Config) { c.Notify.WebhookURL = "not a url" }, wantErr: "must be a valid URL"},
		{name: "smtp without recipients", mutate: func(c *Config) { c.Notify.SMTPHost = "smtp.example.com" }, wantErr: "NOTIFY_EMAIL_TO"},
		{name: "delay order", mutate: func(c *Config) { c.Reconnect.MaxDelay = time.Millisecond }, wantErr: "RECONNECT_MAX_DELAY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
