package enclave

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
)

// sealer encrypts and decrypts plaintext integers at rest inside the enclave
// boundary using AES-256-GCM under a passphrase-derived key.
type sealer struct {
	aead       cipher.AEAD
	signingKey []byte
}

// newSealer derives the enclave master key and proof-signing key from the
// passphrase with PBKDF2-HMAC-SHA256 over a fresh random salt.
func newSealer(passphrase string) (*sealer, error) {
	if passphrase == "" {
		return nil, errors.New("enclave: passphrase must not be empty")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("enclave: generating salt: %w", err)
	}

	derived := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, aesKeyLen*2, sha256.New)

	block, err := aes.NewCipher(derived[:aesKeyLen])
	if err != nil {
		return nil, fmt.Errorf("enclave: aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("enclave: gcm: %w", err)
	}

	return &sealer{
		aead:       aead,
		signingKey: derived[aesKeyLen:],
	}, nil
}

// seal encrypts plaintext and returns nonce||ciphertext.
func (s *sealer) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("enclave: generating nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// open decrypts a nonce||ciphertext blob produced by seal.
func (s *sealer) open(blob []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(blob) < ns {
		return nil, errors.New("enclave: sealed blob too short")
	}
	plaintext, err := s.aead.Open(nil, blob[:ns], blob[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("enclave: open sealed value: %w", err)
	}
	return plaintext, nil
}
