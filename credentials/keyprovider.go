package credentials

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/argon2"

	scherrors "github.com/dwander/schedule-parser-v2/pkg/errors"
)

// EncryptionKeyEnv holds a hex-encoded 32-byte key for CI and headless use.
const EncryptionKeyEnv = "SCHED_ENCRYPTION_KEY"

const (
	keyringService = "sched-cli"
	keyringUser    = "encryption-key"

	keyLength  = 32 // AES-256
	saltLength = 16
)

// Argon2id parameters (RFC 9106 second recommendation, one pass).
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
)

// ErrKeyringUnavailable means the system keyring cannot be read or written.
var ErrKeyringUnavailable = errors.New("system keyring unavailable")

// KeyProvider supplies the key that encrypts the stored API key.
type KeyProvider interface {
	// GetKey returns the 32-byte encryption key.
	GetKey() ([]byte, error)

	// Description names where the key lives, for `sched auth status`.
	Description() string
}

// KeyringKeyProvider keeps a random key in the system keyring. The key is
// created on first use and cached for the life of the provider.
type KeyringKeyProvider struct {
	mu  sync.Mutex
	key []byte
}

func NewKeyringKeyProvider() *KeyringKeyProvider {
	return &KeyringKeyProvider{}
}

func (p *KeyringKeyProvider) GetKey() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.key != nil {
		return p.key, nil
	}

	stored, err := keyring.Get(keyringService, keyringUser)
	switch {
	case err == nil:
		// A malformed entry is replaced below; credentials encrypted with
		// it were unreadable anyway.
		if key, decErr := decodeKey(stored); decErr == nil {
			p.key = key
			return key, nil
		}
	case !errors.Is(err, keyring.ErrNotFound):
		return nil, fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}

	key, err := randomBytes(keyLength)
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	if err := keyring.Set(keyringService, keyringUser, hex.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("%w: storing key: %v", ErrKeyringUnavailable, err)
	}
	p.key = key
	return key, nil
}

func (p *KeyringKeyProvider) Description() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "windows":
		return "Windows Credential Manager"
	default:
		return "System Keyring (Secret Service)"
	}
}

// PassphraseKeyProvider derives the key from a passphrase with Argon2id,
// for machines without a usable keyring. The salt is saved next to the
// encrypted key in credentials.yaml.
type PassphraseKeyProvider struct {
	passphrase string
	salt       []byte
}

func NewPassphraseKeyProvider(passphrase string, salt []byte) *PassphraseKeyProvider {
	return &PassphraseKeyProvider{passphrase: passphrase, salt: salt}
}

func (p *PassphraseKeyProvider) GetKey() ([]byte, error) {
	switch {
	case p.passphrase == "":
		return nil, fmt.Errorf("%w: passphrase is empty", scherrors.ErrValidation)
	case len(p.salt) == 0:
		return nil, fmt.Errorf("%w: salt is empty", scherrors.ErrValidation)
	}
	return argon2.IDKey([]byte(p.passphrase), p.salt, argon2Time, argon2Memory, argon2Threads, keyLength), nil
}

func (p *PassphraseKeyProvider) Description() string {
	return "Passphrase-derived key (Argon2id)"
}

// GenerateSalt returns a random salt for NewPassphraseKeyProvider.
func GenerateSalt() ([]byte, error) {
	salt, err := randomBytes(saltLength)
	if err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

// EnvKeyProvider reads a hex-encoded key from an environment variable.
type EnvKeyProvider struct {
	envVar string
}

func NewEnvKeyProvider(envVar string) *EnvKeyProvider {
	return &EnvKeyProvider{envVar: envVar}
}

func (p *EnvKeyProvider) GetKey() ([]byte, error) {
	v := os.Getenv(p.envVar)
	if v == "" {
		return nil, fmt.Errorf("%w: %s is not set", scherrors.ErrNotConfigured, p.envVar)
	}
	key, err := decodeKey(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.envVar, err)
	}
	return key, nil
}

func (p *EnvKeyProvider) Description() string {
	return fmt.Sprintf("Environment variable (%s)", p.envVar)
}

// GetDefaultKeyProvider returns SCHED_ENCRYPTION_KEY when it is set and the
// system keyring otherwise. A keyring failure names both alternatives.
func GetDefaultKeyProvider() (KeyProvider, error) {
	if os.Getenv(EncryptionKeyEnv) != "" {
		return NewEnvKeyProvider(EncryptionKeyEnv), nil
	}

	provider := NewKeyringKeyProvider()
	if _, err := provider.GetKey(); err != nil {
		if errors.Is(err, ErrKeyringUnavailable) {
			return nil, fmt.Errorf("set %s or use --passphrase: %w", EncryptionKeyEnv, err)
		}
		return nil, err
	}
	return provider, nil
}

// decodeKey parses a hex key and checks its length.
func decodeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: key is not hex: %v", scherrors.ErrValidation, err)
	}
	if len(key) != keyLength {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", scherrors.ErrValidation, keyLength, len(key))
	}
	return key, nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
