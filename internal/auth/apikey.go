package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/subrewind/internal/database"
)

// APIKeyLength is the length of the random portion of generated keys in
// bytes (hex encoded on the wire).
const APIKeyLength = 24

// apiKeyPrefix marks subrewind keys so they are recognizable in configs.
const apiKeyPrefix = "srw_"

// prefixDisplayLen is how many leading characters of a key are kept for
// display. Enough to tell keys apart, useless for authentication.
const prefixDisplayLen = 12

// APIKeyService manages named keys for the read-only JSON API.
type APIKeyService struct {
	db *database.DB
}

// NewAPIKeyService creates a new API key service
func NewAPIKeyService(db *database.DB) *APIKeyService {
	return &APIKeyService{db: db}
}

// GenerateAPIKey creates a new cryptographically secure API key
func GenerateAPIKey() (string, error) {
	bytes := make([]byte, APIKeyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return apiKeyPrefix + hex.EncodeToString(bytes), nil
}

// HashAPIKey returns the hex SHA-256 of a key, the form keys are stored in.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Create generates a key and stores its hash under the given name. The raw
// key is returned exactly once; it cannot be recovered later.
func (s *APIKeyService) Create(name string) (*database.APIKey, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", fmt.Errorf("api key name is required")
	}

	key, err := GenerateAPIKey()
	if err != nil {
		return nil, "", err
	}

	record, err := s.db.CreateAPIKey(name, HashAPIKey(key), key[:prefixDisplayLen])
	if err != nil {
		return nil, "", err
	}
	return record, key, nil
}

// List returns all stored API keys.
func (s *APIKeyService) List() ([]*database.APIKey, error) {
	return s.db.ListAPIKeys()
}

// Delete removes an API key by ID.
func (s *APIKeyService) Delete(id int64) error {
	return s.db.DeleteAPIKey(id)
}

// Validate checks whether the key grants API access and stamps its last-used
// time. Unknown keys simply report false.
func (s *APIKeyService) Validate(key string) (bool, error) {
	if key == "" {
		return false, nil
	}

	record, err := s.db.GetAPIKeyByHash(HashAPIKey(key))
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}

	if err := s.db.TouchAPIKey(record.ID); err != nil {
		// The key is still valid; the timestamp is cosmetic.
		log.Warn().Err(err).Int64("key_id", record.ID).Msg("Failed to stamp api key usage")
	}

	return true, nil
}
