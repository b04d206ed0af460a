package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// MinPasswordLength is the shortest password accepted at sign-up.
const MinPasswordLength = 6

// Argon2id parameters, OWASP 2025 recommendation.
const (
	argonTime    = 3         // iterations
	argonMemory  = 64 * 1024 // 64 MiB
	argonThreads = 1         // parallelism
	argonKeyLen  = 32        // output hash length
	argonSaltLen = 16        // salt length
)

// HashPassword hashes a sign-up password for the accounts table, encoded as
// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<key>.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword reports whether password matches an account's stored hash.
// A hash that cannot be parsed returns ErrMalformedHash.
func VerifyPassword(password, encodedHash string) (bool, error) {
	salt, hash, params, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(hash))) //nolint:gosec // G115: hash length always fits uint32

	return subtle.ConstantTimeCompare(hash, candidate) == 1, nil
}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

// decodePHC splits an encoded hash into salt, key and cost parameters.
// Hashes written with other parameters still verify, so the cost can be
// raised without forcing every account to reset.
func decodePHC(encoded string) (salt, hash []byte, params argonParams, err error) {
	fields := strings.Split(strings.TrimPrefix(encoded, "$"), "$")
	if len(fields) != 5 { //nolint:mnd // alg, version, params, salt, key
		return nil, nil, params, fmt.Errorf("%w: expected 5 fields, got %d", ErrMalformedHash, len(fields))
	}
	alg, ver, cost, saltB64, keyB64 := fields[0], fields[1], fields[2], fields[3], fields[4]

	if alg != "argon2id" {
		return nil, nil, params, fmt.Errorf("%w: algorithm %q", ErrMalformedHash, alg)
	}
	if ver != fmt.Sprintf("v=%d", argon2.Version) {
		return nil, nil, params, fmt.Errorf("%w: version %q", ErrMalformedHash, ver)
	}
	if _, scanErr := fmt.Sscanf(cost, "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); scanErr != nil {
		return nil, nil, params, fmt.Errorf("%w: parameters %q: %w", ErrMalformedHash, cost, scanErr)
	}
	if salt, err = base64.RawStdEncoding.DecodeString(saltB64); err != nil {
		return nil, nil, params, fmt.Errorf("%w: salt: %w", ErrMalformedHash, err)
	}
	if hash, err = base64.RawStdEncoding.DecodeString(keyB64); err != nil {
		return nil, nil, params, fmt.Errorf("%w: key: %w", ErrMalformedHash, err)
	}
	if len(hash) == 0 {
		return nil, nil, params, fmt.Errorf("%w: empty key", ErrMalformedHash)
	}
	return salt, hash, params, nil
}
