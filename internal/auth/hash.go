package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashKey hashes an API key with bcrypt
func HashKey(key string, cost int) ([]byte, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash API key: %w", err)
	}
	return hash, nil
}

// CompareKey reports whether key matches hash
func CompareKey(hash []byte, key string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(key)) == nil
}
