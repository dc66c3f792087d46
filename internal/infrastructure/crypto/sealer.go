// Package crypto seals off-chain payloads (KYC documents, emergency contacts,
// evidence) before they are written to blob storage.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Envelope layout: version(1) | keyIDLen(1) | keyID | nonce(24) | ciphertext+tag.
const envelopeVersion byte = 1

var (
	ErrMissingSecret    = errors.New("payload secret is required")
	ErrMalformedPayload = errors.New("malformed sealed payload")
	ErrUnknownKey       = errors.New("sealed payload uses an unknown key")
	ErrDecrypt          = errors.New("sealed payload failed authentication")
)

// PayloadSealer encrypts payloads with XChaCha20-Poly1305 under a key derived
// from the configured secret with HKDF-SHA256.
type PayloadSealer struct {
	keyID string
	aead  cipher.AEAD
}

// NewPayloadSealer derives the payload key for keyID from secret.
func NewPayloadSealer(secret, keyID string) (*PayloadSealer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if keyID == "" {
		keyID = "v1"
	}
	if len(keyID) > 255 {
		return nil, fmt.Errorf("key id longer than 255 bytes")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), []byte("tsafe-payload-salt"), []byte("tsafe payload key "+keyID))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive payload key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &PayloadSealer{keyID: keyID, aead: aead}, nil
}

// KeyID returns the identifier written into every envelope
func (s *PayloadSealer) KeyID() string {
	return s.keyID
}

// Seal encrypts plaintext. associatedData is authenticated but not stored.
func (s *PayloadSealer) Seal(plaintext, associatedData []byte) ([]byte, error) {
	header := make([]byte, 0, 2+len(s.keyID)+s.aead.NonceSize())
	header = append(header, envelopeVersion, byte(len(s.keyID)))
	header = append(header, s.keyID...)

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	header = append(header, nonce...)

	out := make([]byte, len(header), len(header)+len(plaintext)+s.aead.Overhead())
	copy(out, header)
	return s.aead.Seal(out, nonce, plaintext, associatedData), nil
}

// Open decrypts an envelope produced by Seal with the same associatedData.
func (s *PayloadSealer) Open(sealed, associatedData []byte) ([]byte, error) {
	if len(sealed) < 2 || sealed[0] != envelopeVersion {
		return nil, ErrMalformedPayload
	}
	idLen := int(sealed[1])
	nonceStart := 2 + idLen
	bodyStart := nonceStart + s.aead.NonceSize()
	if len(sealed) < bodyStart+s.aead.Overhead() {
		return nil, ErrMalformedPayload
	}
	if string(sealed[2:nonceStart]) != s.keyID {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, sealed[2:nonceStart])
	}

	plaintext, err := s.aead.Open(nil, sealed[nonceStart:bodyStart], sealed[bodyStart:], associatedData)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
