package storage

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/zalando/go-keyring"
)

// KeyringAvailable reports whether a system keychain can be expected on
// this host. Setting BEACON_USE_KEYCHAIN=false forces the encrypted-file
// fallback, which some CI and container environments need.
func KeyringAvailable() bool {
	if os.Getenv("BEACON_USE_KEYCHAIN") == "false" {
		return false
	}

	switch runtime.GOOS {
	case "darwin", "windows":
		return true
	case "linux":
		// Needs a session bus with a secret service behind it.
		if os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != "" {
			return true
		}
	}
	return false
}

// Keyring stores secrets in the operating system keychain (Keychain,
// libsecret, wincred) under a service namespace. This is the preferred
// SecureStore wherever a keychain daemon is available.
type Keyring struct {
	service string
}

var _ SecureStore = (*Keyring)(nil)

// NewKeyring scopes all entries to the given service name, e.g. "beacon".
func NewKeyring(service string) *Keyring {
	return &Keyring{service: service}
}

func (k *Keyring) Get(key string) (string, error) {
	value, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keyring get: %w", err)
	}
	return value, nil
}

func (k *Keyring) Set(key, value string) error {
	if err := keyring.Set(k.service, key, value); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

func (k *Keyring) Delete(key string) error {
	err := keyring.Delete(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}
