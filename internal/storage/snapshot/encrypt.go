package snapshot

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Encryption errors.
var (
	ErrPassphraseTooWeak    = errors.New("snapshot: passphrase too weak (minimum 8 characters)")
	ErrPassphraseRequired   = errors.New("snapshot: snapshot is encrypted, passphrase required")
	ErrDecryptionFailed     = errors.New("snapshot: decryption failed - wrong passphrase or corrupted data")
	ErrUnsupportedAlgorithm = errors.New("snapshot: unsupported encryption algorithm")
)

// Supported algorithms.
const (
	AlgorithmAESGCM   = "aes-gcm"
	AlgorithmChaCha20 = "chacha20-poly1305"
)

const (
	// MinPassphraseLength is the minimum passphrase length.
	MinPassphraseLength = 8

	// SaltLength is the salt length used in key derivation.
	SaltLength = 16

	kdfArgon2id = "argon2id"

	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	keyLen        = 32

	hkdfInfo = "ledgersnap snapshot data v1"
)

// EncryptionConfig enables encryption of snapshot data blocks. Headers
// stay readable so snapshots can be listed without the passphrase.
type EncryptionConfig struct {
	// Passphrase derives the data key. Empty disables encryption.
	Passphrase []byte

	// Algorithm is "aes-gcm" (default) or "chacha20-poly1305".
	Algorithm string
}

// Enabled reports whether a passphrase is configured.
func (c EncryptionConfig) Enabled() bool {
	return len(c.Passphrase) > 0
}

// Validate checks the configuration.
func (c EncryptionConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if len(c.Passphrase) < MinPassphraseLength {
		return ErrPassphraseTooWeak
	}
	switch c.algorithm() {
	case AlgorithmAESGCM, AlgorithmChaCha20:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, c.Algorithm)
	}
}

func (c EncryptionConfig) algorithm() string {
	if c.Algorithm == "" {
		return AlgorithmAESGCM
	}
	return c.Algorithm
}

// EncryptionHeader records how a data block was encrypted.
type EncryptionHeader struct {
	Algorithm string `json:"algorithm"`
	KDF       string `json:"kdf"`
	Salt      string `json:"salt"`
}

// newAEAD derives the data key for salt (Argon2id, then HKDF) and builds
// the cipher.
func newAEAD(passphrase, salt []byte, algorithm string) (cipher.AEAD, error) {
	master := argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, keyLen)
	defer zeroKey(master)

	key := make([]byte, keyLen)
	defer zeroKey(key)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("snapshot: derive data key: %w", err)
	}

	switch algorithm {
	case AlgorithmAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case AlgorithmChaCha20:
		return chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algorithm)
	}
}

// seal encrypts data under a fresh salt and nonce. The nonce is
// prepended to the ciphertext.
func seal(cfg EncryptionConfig, plaintext, aad []byte) ([]byte, *EncryptionHeader, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("snapshot: generate salt: %w", err)
	}

	aead, err := newAEAD(cfg.Passphrase, salt, cfg.algorithm())
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("snapshot: generate nonce: %w", err)
	}

	hdr := &EncryptionHeader{
		Algorithm: cfg.algorithm(),
		KDF:       kdfArgon2id,
		Salt:      hex.EncodeToString(salt),
	}
	return aead.Seal(nonce, nonce, plaintext, aad), hdr, nil
}

func open(passphrase []byte, hdr *EncryptionHeader, ciphertext, aad []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, ErrPassphraseRequired
	}
	if hdr.KDF != kdfArgon2id {
		return nil, fmt.Errorf("snapshot: unsupported kdf %q", hdr.KDF)
	}
	salt, err := hex.DecodeString(hdr.Salt)
	if err != nil || len(salt) != SaltLength {
		return nil, fmt.Errorf("snapshot: invalid salt in header")
	}

	aead, err := newAEAD(passphrase, salt, hdr.Algorithm)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrDecryptionFailed
	}

	nonce := ciphertext[:aead.NonceSize()]
	plain, err := aead.Open(nil, nonce, ciphertext[aead.NonceSize():], aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plain, nil
}

func zeroKey(key []byte) {
	for i := range key {
		key[i] = 0
	}
}
