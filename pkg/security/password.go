package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrHashingFailed = errors.New("hashing failed")

// PasswordHasher hashes and verifies user secrets. The same hasher covers
// login passwords and one-time recovery codes; codes are short-lived, so
// CodeHash uses a cheaper cost than Hash.
type PasswordHasher interface {
	Hash(password string) (string, error)
	CodeHash(code string) (string, error)
	Compare(hash, plaintext string) error
}

type bcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a bcrypt-backed hasher. Costs outside the bcrypt
// range fall back to the library default.
func NewBcryptHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &bcryptHasher{cost: cost}
}

func (b *bcryptHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", ErrHashingFailed
	}
	return string(bytes), nil
}

func (b *bcryptHasher) CodeHash(code string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", ErrHashingFailed
	}
	return string(bytes), nil
}

func (b *bcryptHasher) Compare(hash, plaintext string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
}
