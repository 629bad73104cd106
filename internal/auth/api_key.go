package auth

import (
	"context"
	"time"

	"finetunedb/internal/storage"
	"finetunedb/internal/utils"
)

// APIKeyRecord is the view of an API key needed at request time.
type APIKeyRecord struct {
	ID        string
	ProjectID string
}

// APIKeyStore resolves plaintext API keys into stored records.
type APIKeyStore interface {
	Lookup(ctx context.Context, plaintextKey string) (*APIKeyRecord, error)
}

// KeyStore checks keys against a single bcrypt-hashed server key.
// Verdicts are cached by the SHA-256 of the presented key so that bcrypt
// runs once per distinct key and TTL.
type KeyStore struct {
	hash   []byte
	record APIKeyRecord
	cache  *storage.LRUCache[bool]
}

// KeyStoreConfig configures a KeyStore
type KeyStoreConfig struct {
	APIKey    string
	ProjectID string
	CacheSize int
	CacheTTL  time.Duration

	// Cost is the bcrypt cost, bcrypt.DefaultCost when zero
	Cost int
}

// NewKeyStore hashes the configured key and returns a store for it
func NewKeyStore(cfg KeyStoreConfig) (*KeyStore, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoKeyConfigured
	}
	hash, err := HashKey(cfg.APIKey, cfg.Cost)
	if err != nil {
		return nil, err
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = 1000
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	fingerprint := utils.HashString(cfg.APIKey)
	return &KeyStore{
		hash: hash,
		record: APIKeyRecord{
			ID:        fingerprint[:12],
			ProjectID: cfg.ProjectID,
		},
		cache: storage.NewLRUCache[bool](size, ttl),
	}, nil
}

// Lookup returns the key record when plaintextKey is the server key
func (s *KeyStore) Lookup(ctx context.Context, plaintextKey string) (*APIKeyRecord, error) {
	if plaintextKey == "" {
		return nil, ErrKeyNotFound
	}

	digest := utils.HashString(plaintextKey)
	valid, cached := s.cache.Get(digest)
	if !cached {
		valid = CompareKey(s.hash, plaintextKey)
		s.cache.Set(digest, valid)
	}
	if !valid {
		return nil, ErrKeyNotFound
	}

	rec := s.record
	return &rec, nil
}

// CacheStats exposes the verdict cache statistics
func (s *KeyStore) CacheStats() storage.CacheStats {
	return s.cache.GetStats()
}
