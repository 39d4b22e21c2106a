package auth

import "golang.org/x/crypto/bcrypt"

// Hasher hashes and verifies login secrets.
type Hasher interface {
	Hash(password string) (string, error)
	// Verify reports whether password matches the stored hash. A malformed
	// hash is treated as a mismatch, not an error.
	Verify(password, hash string) bool
}

// BcryptHasher implements Hasher with bcrypt. Each call salts independently,
// so hashing the same password twice yields different outputs.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher constructs a BcryptHasher. A cost outside bcrypt's valid
// range falls back to the library default.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash derives a salted hash from the password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether password produced hash.
func (h *BcryptHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var _ Hasher = (*BcryptHasher)(nil)
