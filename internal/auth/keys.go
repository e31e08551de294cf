// Package auth verifies the API keys that calling modules present. Keys are
// stored only as argon2id hashes in PHC string format.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidKeyHash         = errors.New("auth: invalid key hash format")
	ErrIncompatibleKeyVersion = errors.New("auth: incompatible key hash version")
	ErrKeyMismatch            = errors.New("auth: key does not match")
	ErrUnknownModule          = errors.New("auth: unknown module")
)

// Params controls the argon2id cost.
type Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams are used by cmd/keyhash.
var DefaultParams = Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// HashKey derives an argon2id hash of key with a random salt.
func HashKey(key string, params Params) (string, error) {
	if key == "" {
		return "", errors.New("auth: key cannot be empty")
	}
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	sum := argon2.IDKey([]byte(key), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	// $argon2id$v=19$m=...,t=...,p=...$salt$hash
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.Memory, params.Iterations, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// VerifyKey checks key against an encoded hash produced by HashKey.
func VerifyKey(encoded, key string) error {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return ErrInvalidKeyHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeyHash, err)
	}
	if version != argon2.Version {
		return ErrIncompatibleKeyVersion
	}

	var params Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeyHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeyHash, err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeyHash, err)
	}

	got := argon2.IDKey([]byte(key), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(want)))
	if subtle.ConstantTimeCompare(want, got) != 1 {
		return ErrKeyMismatch
	}
	return nil
}

// KeyRing maps module names to key hashes. Successful verifications are
// remembered by digest so argon2 runs once per distinct key.
type KeyRing struct {
	hashes map[string]string

	mu       sync.Mutex
	verified map[string][sha256.Size]byte
}

// NewKeyRing builds a key ring from module to hash pairs. Every hash must be
// a well formed argon2id string.
func NewKeyRing(hashes map[string]string) (*KeyRing, error) {
	ring := &KeyRing{
		hashes:   make(map[string]string, len(hashes)),
		verified: make(map[string][sha256.Size]byte),
	}
	for module, hash := range hashes {
		if module == "" {
			return nil, errors.New("auth: module name cannot be empty")
		}
		if !strings.HasPrefix(hash, "$argon2id$") || strings.Count(hash, "$") != 5 {
			return nil, fmt.Errorf("auth: module %s: %w", module, ErrInvalidKeyHash)
		}
		ring.hashes[module] = hash
	}
	return ring, nil
}

// ParseKeyRing reads "module=hash;module=hash". Hashes contain '=' so only the
// first one separates the pair.
func ParseKeyRing(raw string) (*KeyRing, error) {
	hashes := make(map[string]string)
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		module, hash, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("auth: malformed key entry %q", pair)
		}
		module = strings.TrimSpace(module)
		if _, dup := hashes[module]; dup {
			return nil, fmt.Errorf("auth: duplicate key entry for module %s", module)
		}
		hashes[module] = strings.TrimSpace(hash)
	}
	return NewKeyRing(hashes)
}

// Empty reports whether no module keys are configured.
func (r *KeyRing) Empty() bool {
	return r == nil || len(r.hashes) == 0
}

// Modules lists the configured modules in order.
func (r *KeyRing) Modules() []string {
	if r == nil {
		return nil
	}
	modules := make([]string, 0, len(r.hashes))
	for module := range r.hashes {
		modules = append(modules, module)
	}
	sort.Strings(modules)
	return modules
}

// Verify checks key for module.
func (r *KeyRing) Verify(module, key string) error {
	if r == nil {
		return ErrUnknownModule
	}
	hash, ok := r.hashes[module]
	if !ok {
		return ErrUnknownModule
	}

	digest := sha256.Sum256([]byte(key))
	r.mu.Lock()
	cached, hit := r.verified[module]
	r.mu.Unlock()
	if hit && subtle.ConstantTimeCompare(cached[:], digest[:]) == 1 {
		return nil
	}

	if err := VerifyKey(hash, key); err != nil {
		return err
	}

	r.mu.Lock()
	r.verified[module] = digest
	r.mu.Unlock()
	return nil
}
