package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Salt for key derivation
	saltSize = 32
	// Number of iterations for PBKDF2
	pbkdf2Iterations = 100000
	// Key size for AES-256
	keySize = 32

	masterKeyFile = ".master"
)

// SecureFile is a SecureStore for hosts without a keychain daemon. Values
// are encrypted with AES-256-GCM under a master key derived from
// machine-specific data and kept alongside the entries.
//
// This protects secrets from casual inspection and from being copied to
// another machine, not from an attacker with access to the same account.
type SecureFile struct {
	dir       string
	masterKey []byte
}

var _ SecureStore = (*SecureFile)(nil)

// NewSecureFile initializes the store under dir, generating a master key
// on first use.
func NewSecureFile(dir string) (*SecureFile, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create secure store dir: %w", err)
	}
	s := &SecureFile{dir: dir}
	key, err := s.loadMasterKey()
	if err != nil {
		return nil, fmt.Errorf("initialize master key: %w", err)
	}
	s.masterKey = key
	return s, nil
}

func (s *SecureFile) Get(key string) (string, error) {
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read secure entry %q: %w", key, err)
	}
	value, err := s.decrypt(string(data))
	if err != nil {
		return "", fmt.Errorf("decrypt secure entry %q: %w", key, err)
	}
	return value, nil
}

func (s *SecureFile) Set(key, value string) error {
	encrypted, err := s.encrypt(value)
	if err != nil {
		return fmt.Errorf("encrypt secure entry %q: %w", key, err)
	}
	if err := os.WriteFile(s.path(key), []byte(encrypted), 0o600); err != nil {
		return fmt.Errorf("write secure entry %q: %w", key, err)
	}
	return nil
}

func (s *SecureFile) Delete(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete secure entry %q: %w", key, err)
	}
	return nil
}

func (s *SecureFile) path(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".sec")
}

func (s *SecureFile) loadMasterKey() ([]byte, error) {
	keyPath := filepath.Join(s.dir, masterKeyFile)

	data, err := os.ReadFile(keyPath)
	if err == nil {
		// Stored as salt || key
		if len(data) != saltSize+keySize {
			return nil, fmt.Errorf("invalid master key file size")
		}
		return data[saltSize:], nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	key := pbkdf2.Key([]byte(machineID()), salt, pbkdf2Iterations, keySize, sha256.New)

	keyData := append(salt, key...)
	if err := os.WriteFile(keyPath, keyData, 0o600); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *SecureFile) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.masterKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (s *SecureFile) decrypt(encrypted string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(s.masterKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, encryptedData := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, encryptedData, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

func machineID() string {
	hostname, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}

	data := fmt.Sprintf("%s-%s-%s-%s", hostname, user, runtime.GOOS, runtime.GOARCH)
	hash := sha256.Sum256([]byte(data))
	return base64.StdEncoding.EncodeToString(hash[:])
}
