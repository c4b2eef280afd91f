package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/fernet/fernet-go"
)

// ErrUndecryptable is returned when no configured key opens a ciphertext.
var ErrUndecryptable = errors.New("failed to decrypt message payload")

// Encryptor seals message text at rest with AES-256-GCM. Ciphertexts written
// by earlier deployments with Fernet keys can still be opened when those keys
// are listed as legacy keys.
type Encryptor struct {
	aead       cipher.AEAD
	fernetKeys []*fernet.Key
}

// NewEncryptor derives the AES key from secret with SHA-256, so secrets of any
// length work. Entries of legacyKeys that are not valid Fernet keys are ignored.
func NewEncryptor(secret []byte, legacyKeys []string) (*Encryptor, error) {
	if len(secret) == 0 {
		return nil, errors.New("encryption key must not be empty")
	}
	sum := sha256.Sum256(secret)
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	keys := make([]*fernet.Key, 0, len(legacyKeys)+1)
	if fk := parseFernetKey(string(secret)); fk != nil {
		keys = append(keys, fk)
	}
	for _, raw := range legacyKeys {
		if fk := parseFernetKey(raw); fk != nil {
			keys = append(keys, fk)
		}
	}
	return &Encryptor{aead: aead, fernetKeys: keys}, nil
}

func parseFernetKey(raw string) *fernet.Key {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	key, err := fernet.DecodeKey(trimmed)
	if err != nil {
		return nil
	}
	return key
}

// Encrypt seals plain. The empty string stays empty so image-only messages
// keep an absent text field.
func (e *Encryptor) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt or by a legacy Fernet key.
func (e *Encryptor) Decrypt(enc string) (string, error) {
	if enc == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err == nil && len(raw) >= e.aead.NonceSize() {
		nonce, body := raw[:e.aead.NonceSize()], raw[e.aead.NonceSize():]
		if plain, openErr := e.aead.Open(nil, nonce, body, nil); openErr == nil {
			return string(plain), nil
		}
	}
	if len(e.fernetKeys) > 0 {
		if plain := fernet.VerifyAndDecrypt([]byte(enc), 0*time.Second, e.fernetKeys); plain != nil {
			return string(plain), nil
		}
	}
	return "", ErrUndecryptable
}

// DecryptOrRaw returns the plaintext, or enc itself when it cannot be opened
// (rows written before encryption was enabled).
func (e *Encryptor) DecryptOrRaw(enc string) string {
	plain, err := e.Decrypt(enc)
	if err != nil {
		return enc
	}
	return plain
}
