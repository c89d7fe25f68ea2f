package cache

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/kant-ai/bandsaw/pkg/domain"
)

const envelopeKey = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey encrypts new entries. Must be 32 bytes for AES-256.
	ActiveKey []byte
	// FallbackKeys are tried when the active key can't decrypt an entry,
	// which allows rotating keys without dropping the cache.
	FallbackKeys [][]byte
}

// EncryptedStore encrypts results with AES-GCM before handing them to the
// wrapped store. The wrapped store only sees an envelope result whose value
// holds the ciphertext.
type EncryptedStore struct {
	next   Store
	config EncryptionConfig
}

// NewEncryptedStore wraps next.
func NewEncryptedStore(next Store, config EncryptionConfig) (*EncryptedStore, error) {
	if len(config.ActiveKey) != 32 {
		return nil, errors.New("active key must be 32 bytes (AES-256)")
	}
	return &EncryptedStore{next: next, config: config}, nil
}

// ParseKey decodes a base64 key as used in settings files.
func ParseKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid key encoding: %w", err)
	}
	return key, nil
}

func (s *EncryptedStore) Load(ctx context.Context, taskID, executionID string) (*domain.Result, error) {
	envelope, err := s.next.Load(ctx, taskID, executionID)
	if err != nil {
		return nil, err
	}
	values, ok := envelope.Value.(map[string]any)
	if !ok {
		return nil, errors.New("cache entry is missing encrypted data envelope")
	}
	encoded, ok := values[envelopeKey].(string)
	if !ok {
		return nil, errors.New("cache entry is missing encrypted data envelope")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plain, err := decryptWithRotation(ciphertext, s.config.ActiveKey, s.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt cache entry: %w", err)
	}
	var result domain.Result
	if err := result.UnmarshalJSON(plain); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted result: %w", err)
	}
	return &result, nil
}

func (s *EncryptedStore) Store(ctx context.Context, taskID, executionID string, result *domain.Result) (bool, error) {
	plain, err := result.MarshalJSON()
	if err != nil {
		return false, fmt.Errorf("failed to marshal result: %w", err)
	}
	ciphertext, err := encrypt(plain, s.config.ActiveKey)
	if err != nil {
		return false, fmt.Errorf("failed to encrypt result: %w", err)
	}
	envelope := domain.Success(map[string]any{
		envelopeKey: base64.StdEncoding.EncodeToString(ciphertext),
	})
	return s.next.Store(ctx, taskID, executionID, envelope)
}

func (s *EncryptedStore) Delete(ctx context.Context, taskID, executionID string) error {
	return s.next.Delete(ctx, taskID, executionID)
}

func encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
