package database

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mrmushfiq/prospect-gateway/internal/shared/models"
)

const apiKeyPrefix = "pk_"

func hashKey(rawKey string) string {
	hash := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(hash[:])
}

// GetAPIKey retrieves an active API key by its raw key value
func (db *DB) GetAPIKey(ctx context.Context, rawKey string) (*models.APIKey, error) {
	query := db.q(`
		SELECT id, key_hash, key_prefix, name, user_id, is_active, created_at
		FROM api_keys
		WHERE key_hash = ? AND is_active = TRUE
	`)

	var apiKey models.APIKey
	var created dbTime
	err := db.conn.QueryRowContext(ctx, query, hashKey(rawKey)).Scan(
		&apiKey.ID,
		&apiKey.KeyHash,
		&apiKey.KeyPrefix,
		&apiKey.Name,
		&apiKey.UserID,
		&apiKey.IsActive,
		&created,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidAPIKey
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	apiKey.CreatedAt = created.Time
	return &apiKey, nil
}

// CreateAPIKey issues a new key for a user and returns the raw value.
// Only the hash is stored.
func (db *DB) CreateAPIKey(ctx context.Context, userID, name string) (string, error) {
	secret := make([]byte, 24)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	raw := apiKeyPrefix + hex.EncodeToString(secret)

	query := db.q(`INSERT INTO api_keys (id, key_hash, key_prefix, name, user_id) VALUES (?, ?, ?, ?, ?)`)
	if _, err := db.conn.ExecContext(ctx, query, uuid.NewString(), hashKey(raw), raw[:len(apiKeyPrefix)+6], name, userID); err != nil {
		return "", fmt.Errorf("create api key: %w", err)
	}
	return raw, nil
}

// UpdateAPIKeyLastUsed updates the last_used_at timestamp
func (db *DB) UpdateAPIKeyLastUsed(ctx context.Context, apiKeyID string) error {
	query := db.q(`UPDATE api_keys SET last_used_at = CURRENT_TIMESTAMP WHERE id = ?`)
	_, err := db.conn.ExecContext(ctx, query, apiKeyID)
	return err
}
