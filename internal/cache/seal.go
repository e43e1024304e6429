package cache

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/tink-crypto/tink-go/v2/aead"
	"github.com/tink-crypto/tink-go/v2/insecurecleartextkeyset"
	"github.com/tink-crypto/tink-go/v2/keyset"
	"github.com/tink-crypto/tink-go/v2/tink"
)

// valuePrefix marks sealed values, distinguishing them from plaintext
// entries written before encryption was enabled.
const valuePrefix = "fbs-enc:"

// storageKeyPrefix separates sealed entries from plaintext ones in the
// shared store.
const storageKeyPrefix = "enc:"

// Sealer controls how values are protected before they reach a shared
// store. Session keys are backend credentials; a compromised Valkey
// instance must not hand them out in plaintext.
type Sealer interface {
	// Seal protects a value for storage. The cache key is bound to the
	// sealed value so ciphertexts cannot be swapped between entries.
	Seal(value []byte, key string) (string, error)

	// Open reverses Seal. The key must match the one used to seal.
	Open(value string, key string) ([]byte, error)

	// StorageKey returns the store key, decorated when sealing is active.
	StorageKey(key string) string
}

// PlainSealer stores values as-is.
type PlainSealer struct{}

func (PlainSealer) Seal(value []byte, _ string) (string, error) {
	return string(value), nil
}

func (PlainSealer) Open(value string, _ string) ([]byte, error) {
	return []byte(value), nil
}

func (PlainSealer) StorageKey(key string) string {
	return key
}

// AEADSealer seals values with a Tink AEAD primitive, using the cache key
// as associated data. Sealed values are base64-encoded and prefixed.
type AEADSealer struct {
	aead tink.AEAD
}

func NewAEADSealer(a tink.AEAD) *AEADSealer {
	return &AEADSealer{aead: a}
}

// NewAEADSealerFromFile loads a cleartext Tink keyset from a JSON file.
// The file is expected to be delivered through the deployment's secret
// mechanism; it is not a KMS-wrapped keyset.
func NewAEADSealerFromFile(path string) (*AEADSealer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening keyset file: %w", err)
	}
	defer f.Close()

	handle, err := insecurecleartextkeyset.Read(keyset.NewJSONReader(f))
	if err != nil {
		return nil, fmt.Errorf("reading keyset: %w", err)
	}

	primitive, err := aead.New(handle)
	if err != nil {
		return nil, fmt.Errorf("creating AEAD primitive: %w", err)
	}

	return NewAEADSealer(primitive), nil
}

func (s *AEADSealer) Seal(value []byte, key string) (string, error) {
	ciphertext, err := s.aead.Encrypt(value, []byte(key))
	if err != nil {
		return "", fmt.Errorf("sealing value: %w", err)
	}
	return valuePrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (s *AEADSealer) Open(value string, key string) ([]byte, error) {
	encoded, ok := strings.CutPrefix(value, valuePrefix)
	if !ok {
		return nil, fmt.Errorf("missing %q prefix: value may be unsealed or corrupted", valuePrefix)
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("base64 decode failed: %w", err)
	}

	plaintext, err := s.aead.Decrypt(decoded, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("opening value failed: %w", err)
	}

	return plaintext, nil
}

func (s *AEADSealer) StorageKey(key string) string {
	return storageKeyPrefix + key
}
