// Package credentials stores the LLM provider API key used by the hybrid
// engine in ~/.sched/credentials.yaml, encrypted with AES-256-GCM.
//
// Encryption key storage:
//   - SCHED_ENCRYPTION_KEY (64 hex characters) for CI and headless hosts
//   - the system keyring (macOS Keychain, Windows Credential Manager,
//     Linux Secret Service)
//   - a passphrase, stretched with Argon2id; the salt lives in the file
//
// OPENAI_API_KEY in the environment always wins over the stored key.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultCredentialsDir  = ".sched"
	DefaultCredentialsFile = "credentials.yaml"

	// APIKeyEnv overrides any stored key.
	APIKeyEnv = "OPENAI_API_KEY"

	// PassphraseEnv unlocks a passphrase-protected store without a prompt.
	PassphraseEnv = "SCHED_PASSPHRASE"
)

// Key sources reported by ActiveAPIKey.
const (
	SourceEnv   = "env"
	SourceStore = "store"
)

var (
	ErrNoCredentials    = errors.New("no credentials stored")
	ErrEncryptionFailed = errors.New("encryption failed")
)

// Credentials is the on-disk record. APIKey is sealed before it is written.
type Credentials struct {
	Provider    string    `yaml:"provider"`
	APIKey      string    `yaml:"api_key"`
	Salt        string    `yaml:"salt,omitempty"` // hex, passphrase stores only
	LastUpdated time.Time `yaml:"last_updated"`
}

// Store reads and writes the credentials file with one encryption key.
type Store struct {
	file     string
	key      []byte
	salt     []byte
	provider KeyProvider
}

// NewStore opens the default file with GetDefaultKeyProvider.
func NewStore() (*Store, error) {
	provider, err := GetDefaultKeyProvider()
	if err != nil {
		return nil, fmt.Errorf("initializing key provider: %w", err)
	}
	return NewStoreWithKeyProvider(provider)
}

// OpenDefaultStore is what the CLI uses: a passphrase store when
// SCHED_PASSPHRASE is set, NewStore otherwise.
func OpenDefaultStore() (*Store, error) {
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		return NewPassphraseStore(pass)
	}
	return NewStore()
}

func NewStoreWithKeyProvider(provider KeyProvider) (*Store, error) {
	file, err := CredentialsPath()
	if err != nil {
		return nil, err
	}
	return open(file, provider, nil)
}

// NewPassphraseStore derives the key from passphrase and the salt already
// in the file. A new file gets a fresh salt on Save.
func NewPassphraseStore(passphrase string) (*Store, error) {
	file, err := CredentialsPath()
	if err != nil {
		return nil, err
	}

	salt, err := storedSalt(file)
	if err != nil {
		return nil, err
	}
	if salt == nil {
		if salt, err = GenerateSalt(); err != nil {
			return nil, err
		}
	}
	return open(file, NewPassphraseKeyProvider(passphrase, salt), salt)
}

func open(file string, provider KeyProvider, salt []byte) (*Store, error) {
	key, err := provider.GetKey()
	if err != nil {
		return nil, fmt.Errorf("getting encryption key: %w", err)
	}
	return &Store{file: file, key: key, salt: salt, provider: provider}, nil
}

// CredentialsDir is $SCHED_CONFIG_DIR, or ~/.sched.
func CredentialsDir() (string, error) {
	if dir := os.Getenv("SCHED_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, DefaultCredentialsDir), nil
}

func CredentialsPath() (string, error) {
	dir, err := CredentialsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultCredentialsFile), nil
}

// readCredentials parses file without decrypting. A missing file is
// ErrNoCredentials.
func readCredentials(file string) (*Credentials, error) {
	data, err := os.ReadFile(file)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, ErrNoCredentials
	case err != nil:
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", file, err)
	}
	return &creds, nil
}

func storedSalt(file string) ([]byte, error) {
	creds, err := readCredentials(file)
	if errors.Is(err, ErrNoCredentials) || (err == nil && creds.Salt == "") {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	salt, err := hex.DecodeString(creds.Salt)
	if err != nil {
		return nil, fmt.Errorf("parsing credentials salt: %w", err)
	}
	return salt, nil
}

// KeyDescription names where the encryption key comes from.
func (s *Store) KeyDescription() string {
	return s.provider.Description()
}

// Save seals the API key and writes the file with mode 0600.
func (s *Store) Save(creds *Credentials) error {
	out := Credentials{
		Provider:    creds.Provider,
		LastUpdated: time.Now(),
	}
	if s.salt != nil {
		out.Salt = hex.EncodeToString(s.salt)
	}
	if creds.APIKey != "" {
		sealed, err := encrypt(s.key, creds.APIKey)
		if err != nil {
			return fmt.Errorf("encrypting API key: %w", err)
		}
		out.APIKey = sealed
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.file), 0700); err != nil {
		return fmt.Errorf("creating credentials directory: %w", err)
	}
	return os.WriteFile(s.file, data, 0600)
}

// Load returns the credentials with the API key decrypted.
func (s *Store) Load() (*Credentials, error) {
	creds, err := readCredentials(s.file)
	if err != nil {
		return nil, err
	}
	if creds.APIKey != "" {
		if creds.APIKey, err = decrypt(s.key, creds.APIKey); err != nil {
			return nil, fmt.Errorf("decrypting API key: %w", err)
		}
	}
	return creds, nil
}

// Delete removes the file. A missing file is not an error.
func (s *Store) Delete() error {
	if err := os.Remove(s.file); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing credentials file: %w", err)
	}
	return nil
}

func (s *Store) Exists() bool {
	_, err := os.Stat(s.file)
	return err == nil
}

// ActiveAPIKey returns the API key in effect and its source. A nil store
// only consults the environment.
func ActiveAPIKey(s *Store) (key, source string, err error) {
	if v := strings.TrimSpace(os.Getenv(APIKeyEnv)); v != "" {
		return v, SourceEnv, nil
	}
	if s == nil {
		return "", "", ErrNoCredentials
	}

	creds, err := s.Load()
	switch {
	case err != nil:
		return "", "", err
	case creds.APIKey == "":
		return "", "", ErrNoCredentials
	}
	return creds.APIKey, SourceStore, nil
}

// encrypt returns base64(nonce || AES-GCM ciphertext).
func encrypt(key []byte, plaintext string) (string, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}
	nonce, err := randomBytes(aead.NonceSize())
	if err != nil {
		return "", fmt.Errorf("%w: nonce: %v", ErrEncryptionFailed, err)
	}
	return base64.StdEncoding.EncodeToString(aead.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

func decrypt(key []byte, sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}
	n := aead.NonceSize()
	if len(data) < n {
		return "", fmt.Errorf("%w: ciphertext shorter than nonce", ErrEncryptionFailed)
	}
	plain, err := aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: wrong key or corrupted value", ErrEncryptionFailed)
	}
	return string(plain), nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return aead, nil
}

// MaskAPIKey keeps four characters at each end, e.g. "sk-p...x9Qz". Keys of
// twelve characters or fewer are fully starred.
func MaskAPIKey(apiKey string) string {
	if len(apiKey) <= 12 {
		return strings.Repeat("*", len(apiKey))
	}
	return apiKey[:4] + "..." + apiKey[len(apiKey)-4:]
}

// KeyID is the first four bytes of the key's SHA-256, in hex.
func KeyID(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:4])
}
