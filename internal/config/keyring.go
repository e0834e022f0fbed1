package config

import (
	"fmt"
	"strings"

	"github.com/99designs/keyring"
)

const (
	keyringService = "mailsync"
	keyringPrefix  = "keyring:"
)

// keyringGet is swapped in tests.
var keyringGet = func(key string) (string, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.KeychainBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:          "~/.config/mailsync/credentials",
		FilePasswordFunc: keyring.FixedStringPrompt("mailsync-file-key"),
	})
	if err != nil {
		return "", fmt.Errorf("opening keyring: %w", err)
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// resolveSecret returns value unchanged unless it names a keyring entry
// ("keyring:<key>"), in which case the stored secret is returned.
func resolveSecret(value string) (string, error) {
	if !strings.HasPrefix(value, keyringPrefix) {
		return value, nil
	}
	key := strings.TrimPrefix(value, keyringPrefix)
	if key == "" {
		return "", fmt.Errorf("empty keyring key")
	}
	return keyringGet(key)
}
