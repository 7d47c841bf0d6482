package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

func hashWithCost(password string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Hasher lets tests trade hashing strength for speed.
type Hasher struct {
	Cost int
}

// DefaultHasher uses the production cost.
var DefaultHasher = Hasher{Cost: bcryptCost}

// Hash hashes password at h.Cost.
func (h Hasher) Hash(password string) (string, error) {
	return hashWithCost(password, h.Cost)
}

// Check reports whether password matches hash.
func (Hasher) Check(hash, password string) bool {
	return CheckPassword(hash, password)
}
