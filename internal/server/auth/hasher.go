package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// ErrMismatchedPassword is returned by Compare when the password does not
// match the hash.
var ErrMismatchedPassword = errors.New("password does not match hash")

// Hasher generates and verifies one-way password hashes. Every Hash call
// uses a fresh random salt.
type Hasher interface {
	Hash(password string) (string, error)

	// Compare returns nil when password matches hashed.
	Compare(password, hashed string) error
}

// DefaultBcryptCost is the work factor used when none is configured.
const DefaultBcryptCost = 10

var (
	_ Hasher = (*BcryptHasher)(nil)
	_ Hasher = (*Argon2Hasher)(nil)
)

type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a bcrypt hasher. Costs outside bcrypt's range fall
// back to DefaultBcryptCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (h *BcryptHasher) Compare(password, hashed string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatchedPassword
	}
	return err
}

// argon2id parameters.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// Argon2Hasher stores hashes as "argon2id$<salt b64>$<key b64>".
type Argon2Hasher struct{}

func NewArgon2Hasher() *Argon2Hasher { return &Argon2Hasher{} }

func (h *Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("argon2id$%s$%s",
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h *Argon2Hasher) Compare(password, hashed string) error {
	parts := strings.Split(hashed, "$")
	if len(parts) != 3 || parts[0] != "argon2id" {
		return errors.New("malformed argon2id hash")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("decode salt: %w", err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("decode key: %w", err)
	}

	if len(salt) == 0 || len(expected) != argonKeyLen {
		return errors.New("malformed argon2id hash")
	}

	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	if subtle.ConstantTimeCompare(key, expected) != 1 {
		return ErrMismatchedPassword
	}
	return nil
}

// NewHasher returns the hasher for the configured algorithm name.
func NewHasher(name string, bcryptCost int) (Hasher, error) {
	switch name {
	case "", "bcrypt":
		return NewBcryptHasher(bcryptCost), nil
	case "argon2id":
		return NewArgon2Hasher(), nil
	default:
		return nil, fmt.Errorf("unknown password hasher %q", name)
	}
}
