// Package password hashes credentials with Argon2id and encodes them in
// PHC string format, so records stay verifiable after parameter upgrades.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	phcAlgorithm = "argon2id"

	minMemoryKB    uint32 = 8 * 1024
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	minPasswordLen        = 8
)

var (
	ErrWeakPassword  = errors.New("password too short")
	ErrBadHashFormat = errors.New("malformed password hash")
)

// Params are the Argon2id cost settings.
type Params struct {
	MemoryKB    uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams follows the second OWASP-recommended Argon2id configuration.
func DefaultParams() Params {
	return Params{
		MemoryKB:    19 * 1024,
		Iterations:  2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher hashes and verifies passwords. Safe for concurrent use.
type Hasher struct {
	params Params
}

func NewHasher(params Params) (*Hasher, error) {
	switch {
	case params.MemoryKB < minMemoryKB:
		return nil, errors.New("argon2 memory must be >= 8192 KB")
	case params.Iterations < 1:
		return nil, errors.New("argon2 iterations must be >= 1")
	case params.Parallelism < 1:
		return nil, errors.New("argon2 parallelism must be >= 1")
	case params.SaltLength < minSaltLength:
		return nil, errors.New("argon2 salt length must be >= 16")
	case params.KeyLength < minKeyLength:
		return nil, errors.New("argon2 key length must be >= 16")
	}
	return &Hasher{params: params}, nil
}

// Hash derives an Argon2id digest of password and returns it PHC-encoded.
// Password bytes are used exactly as provided, no normalization.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < minPasswordLen {
		return "", ErrWeakPassword
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		h.params.Iterations,
		h.params.MemoryKB,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcAlgorithm,
		argon2.Version,
		h.params.MemoryKB,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches the PHC-encoded hash. The
// comparison is constant-time over the derived keys.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	rec, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		rec.salt,
		rec.iterations,
		rec.memoryKB,
		rec.parallelism,
		uint32(len(rec.key)),
	)

	return subtle.ConstantTimeCompare(computed, rec.key) == 1, nil
}

// NeedsRehash reports whether the stored hash was produced with weaker
// settings than the hasher currently uses.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	rec, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	if rec.memoryKB < h.params.MemoryKB ||
		rec.iterations < h.params.Iterations ||
		rec.parallelism < h.params.Parallelism {
		return true, nil
	}
	return uint32(len(rec.key)) != h.params.KeyLength, nil
}

type phcRecord struct {
	memoryKB    uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func decodePHC(encoded string) (*phcRecord, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, ErrBadHashFormat
	}
	if parts[1] != phcAlgorithm {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrBadHashFormat, parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("%w: bad version field", ErrBadHashFormat)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported argon2 version %d", ErrBadHashFormat, version)
	}

	var rec phcRecord
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&rec.memoryKB, &rec.iterations, &rec.parallelism); err != nil {
		return nil, fmt.Errorf("%w: bad parameter field", ErrBadHashFormat)
	}
	if rec.memoryKB < minMemoryKB || rec.iterations < 1 || rec.parallelism < 1 {
		return nil, fmt.Errorf("%w: parameters below floor", ErrBadHashFormat)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || uint32(len(salt)) < minSaltLength {
		return nil, fmt.Errorf("%w: bad salt", ErrBadHashFormat)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || uint32(len(key)) < minKeyLength {
		return nil, fmt.Errorf("%w: bad key", ErrBadHashFormat)
	}

	rec.salt = salt
	rec.key = key
	return &rec, nil
}
