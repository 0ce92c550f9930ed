package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const keyInfo = "paycore/bank-details/v1"

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Service seals small values with AES-256-GCM under a key derived from the
// configured secret. Without a secret it passes values through unchanged.
type Service struct {
	aead cipher.AEAD
}

func New(secret string) (*Service, error) {
	if secret == "" {
		return &Service{}, nil
	}
	raw := decodeKey(secret)
	if len(raw) < 16 {
		return nil, fmt.Errorf("DATA_ENCRYPTION_KEY must be at least 16 bytes after decoding")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, raw, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Service{aead: gcm}, nil
}

func (s *Service) Configured() bool {
	return s.aead != nil
}

func (s *Service) Encrypt(plain []byte) ([]byte, error) {
	if len(plain) == 0 {
		return nil, nil
	}
	if !s.Configured() {
		return plain, nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

func (s *Service) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, nil
	}
	if !s.Configured() {
		return ciphertext, nil
	}
	size := s.aead.NonceSize()
	if len(ciphertext) < size {
		return nil, ErrCiphertextTooShort
	}
	return s.aead.Open(nil, ciphertext[:size], ciphertext[size:], nil)
}

// EncryptJSON marshals v and seals it.
func (s *Service) EncryptJSON(v any) ([]byte, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return s.Encrypt(plain)
}

// DecryptJSON opens data into v. Empty data leaves v untouched.
func (s *Service) DecryptJSON(data []byte, v any) error {
	plain, err := s.Decrypt(data)
	if err != nil {
		return err
	}
	if len(plain) == 0 {
		return nil
	}
	return json.Unmarshal(plain, v)
}

func decodeKey(raw string) []byte {
	if len(raw) == 64 {
		if decoded, err := hex.DecodeString(raw); err == nil {
			return decoded
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return decoded
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(raw); err == nil {
		return decoded
	}
	return []byte(raw)
}
