package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
)

// argon2Params mirrors the tuning used by the original password hasher:
// 64MiB memory, 3 passes, 2 threads, 32-byte output, 16-byte salt.
type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
	keyLen  uint32
	saltLen uint32
}

var defaultArgon2Params = argon2Params{
	memory:  64 * 1024,
	time:    3,
	threads: 2,
	keyLen:  32,
	saltLen: 16,
}

// PasswordHasher hashes and verifies passwords with Argon2id, encoding the
// parameters into the stored string so future tuning changes stay
// backward-compatible with hashes issued under an older configuration.
type PasswordHasher struct {
	params argon2Params
}

// NewPasswordHasher constructs a hasher using the default tuning.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{params: defaultArgon2Params}
}

// Hash produces an encoded Argon2id hash of the form:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt-b64>$<hash-b64>
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", serrors.HashingFailed(err)
	}

	digest := argon2.IDKey([]byte(password), salt, h.params.time, h.params.memory, h.params.threads, h.params.keyLen)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.memory, h.params.time, h.params.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	)
	return encoded, nil
}

// Verify reports whether password matches the encoded hash, in constant time
// with respect to the digest comparison.
func (h *PasswordHasher) Verify(password, encoded string) (bool, error) {
	params, salt, digest, err := decodeArgon2(encoded)
	if err != nil {
		return false, serrors.VerificationFailed(err)
	}

	candidate := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(digest)))
	return subtle.ConstantTimeCompare(candidate, digest) == 1, nil
}

func decodeArgon2(encoded string) (argon2Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return argon2Params{}, nil, nil, fmt.Errorf("malformed argon2 hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return argon2Params{}, nil, nil, fmt.Errorf("malformed argon2 version: %w", err)
	}

	var p argon2Params
	var memory, timeCost uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &threads); err != nil {
		return argon2Params{}, nil, nil, fmt.Errorf("malformed argon2 params: %w", err)
	}
	p.memory, p.time, p.threads = memory, timeCost, threads

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return argon2Params{}, nil, nil, fmt.Errorf("malformed argon2 salt: %w", err)
	}
	digest, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return argon2Params{}, nil, nil, fmt.Errorf("malformed argon2 digest: %w", err)
	}

	return p, salt, digest, nil
}

// dummyHash is a precomputed hash of a random, never-used password. It is
// compared against on every login attempt for an email that doesn't exist,
// so the time taken to reject an unknown email is indistinguishable from the
// time taken to reject a wrong password for a known one.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=2$c29tZXJhbmRvbXNhbHQ$8Z3kR1gq+z0W2v6hX4u1c1b1+xLk1m3s6xV1qkq9DYw"
