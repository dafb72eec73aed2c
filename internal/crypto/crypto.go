package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the AES-GCM nonce length in bytes.
	NonceSize = 12
	// SharedSecretSize is the X25519 shared secret length in bytes.
	SharedSecretSize = 32
	// ChallengeSize is the length of an authentication challenge nonce.
	ChallengeSize = 32
)

var (
	ErrInvalidKeySize    = errors.New("invalid key size")
	ErrCiphertextShort   = errors.New("ciphertext shorter than nonce")
	ErrDecryptFailed     = errors.New("decryption failed")
	ErrInvalidPublicKey  = errors.New("invalid public key")
	ErrInvalidPrivateKey = errors.New("invalid private key")
)

// Manager provides the cryptographic primitives used by the relay. It owns
// the server's Ed25519 signing keypair, generated once at construction and
// held for the process lifetime.
type Manager struct {
	signingPub  ed25519.PublicKey
	signingPriv ed25519.PrivateKey
}

func NewManager() (*Manager, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}

	return &Manager{
		signingPub:  pub,
		signingPriv: priv,
	}, nil
}

// Encrypt seals plaintext with AES-256-GCM under a fresh random nonce.
// Output format: nonce(12) || ciphertext.
func (m *Manager) Encrypt(plaintext, key []byte) ([]byte, error) {
	aead, err := newAESGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("read random nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a nonce-prefixed AES-256-GCM blob. It returns no partial
// plaintext on failure.
func (m *Manager) Decrypt(blob, key []byte) ([]byte, error) {
	aead, err := newAESGCM(key)
	if err != nil {
		return nil, err
	}

	if len(blob) < NonceSize {
		return nil, ErrCiphertextShort
	}

	nonce, ciphertext := blob[:NonceSize], blob[NonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}

	return plaintext, nil
}

func newAESGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	return aead, nil
}

// DeriveKey derives a 256-bit key from a shared secret using HKDF-SHA256.
// Deterministic for identical inputs.
func (m *Manager) DeriveKey(secret, salt, info []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, salt, info)
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf read: %w", err)
	}

	return key, nil
}

// KeyPair holds an ephemeral X25519 keypair.
type KeyPair struct {
	Private *ecdh.PrivateKey
	Public  []byte
}

// GenerateKeyPair creates an ephemeral X25519 keypair for key exchange.
func (m *Manager) GenerateKeyPair() (KeyPair, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate x25519 key: %w", err)
	}

	return KeyPair{
		Private: priv,
		Public:  priv.PublicKey().Bytes(),
	}, nil
}

// SharedSecret performs X25519 ECDH between our private key and a peer's
// public value. For keypairs A and B, SharedSecret(A.Private, B.Public)
// equals SharedSecret(B.Private, A.Public).
func (m *Manager) SharedSecret(priv *ecdh.PrivateKey, peerPub []byte) ([]byte, error) {
	if priv == nil {
		return nil, ErrInvalidPrivateKey
	}

	pub, err := ecdh.X25519().NewPublicKey(peerPub)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}

	secret, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}

	return secret, nil
}

// Sign signs data with the server's Ed25519 signing key.
func (m *Manager) Sign(data []byte) []byte {
	return ed25519.Sign(m.signingPriv, data)
}

// Verify checks an Ed25519 signature against the given public key.
func (m *Manager) Verify(data, sig, pub []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}

	return ed25519.Verify(ed25519.PublicKey(pub), data, sig)
}

// PublicKey returns the server's Ed25519 public signing key.
func (m *Manager) PublicKey() ed25519.PublicKey {
	return m.signingPub
}

// ComputeHMAC computes an HMAC-SHA256 tag.
func (m *Manager) ComputeHMAC(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// VerifyHMAC verifies an HMAC-SHA256 tag in constant time.
func (m *Manager) VerifyHMAC(key, data, tag []byte) bool {
	return hmac.Equal(tag, m.ComputeHMAC(key, data))
}

// NewAESKey generates a random 256-bit AES key.
func (m *Manager) NewAESKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("read random key: %w", err)
	}

	return key, nil
}

// NewChallenge generates a random challenge nonce for signature
// authentication.
func (m *Manager) NewChallenge() ([]byte, error) {
	c := make([]byte, ChallengeSize)
	if _, err := io.ReadFull(rand.Reader, c); err != nil {
		return nil, fmt.Errorf("read random challenge: %w", err)
	}

	return c, nil
}

// Argon2id parameters.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// HashPassword hashes a password with Argon2id and encodes the result in
// the standard PHC string format.
func (m *Manager) HashPassword(password string, salt []byte) (string, error) {
	if len(salt) == 0 {
		return "", errors.New("empty salt")
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword checks a password against an encoded Argon2id hash. A
// malformed hash returns false through the same comparison path as a wrong
// password.
func (m *Manager) VerifyPassword(password, encoded string) bool {
	salt, hash, memory, time, threads, ok := decodeArgon2(encoded)
	if !ok {
		// Compare against a fixed-size dummy so malformed input is not
		// distinguishable from a mismatch by an early return.
		dummy := make([]byte, argonKeyLen)
		computed := argon2.IDKey([]byte(password), []byte("invalid-salt"), argonTime, argonMemory, argonThreads, argonKeyLen)
		subtle.ConstantTimeCompare(computed, dummy)
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(computed, hash) == 1
}

func decodeArgon2(encoded string) (salt, hash []byte, memory, time uint32, threads uint8, ok bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, 0, 0, 0, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, nil, 0, 0, 0, false
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return nil, nil, 0, 0, 0, false
	}

	var err error
	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return nil, nil, 0, 0, 0, false
	}

	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return nil, nil, 0, 0, 0, false
	}

	return salt, hash, memory, time, threads, true
}
