// Package credential persists the user's API key for the metered service.
package credential

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/ghostwrite/internal/db"
	"github.com/hpungsan/ghostwrite/internal/errors"
)

// SettingKey is the settings row holding the API key.
const SettingKey = "api_key"

// Store reads and writes the credential in the local settings table.
type Store struct {
	db *sql.DB
}

// NewStore wraps an initialized local database.
func NewStore(database *sql.DB) *Store {
	return &Store{db: database}
}

// Load returns the saved key, or "" when none is saved.
func (s *Store) Load(ctx context.Context) (string, error) {
	value, ok, err := db.GetSetting(ctx, s.db, SettingKey)
	if err != nil || !ok {
		return "", err
	}
	return value, nil
}

// Save persists key, replacing any previous one.
func (s *Store) Save(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.NewInvalidRequest("API key is required")
	}
	return db.SetSetting(ctx, s.db, SettingKey, key)
}

// Clear removes the saved key.
func (s *Store) Clear(ctx context.Context) error {
	return db.DeleteSetting(ctx, s.db, SettingKey)
}
