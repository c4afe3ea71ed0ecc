package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by lookup methods when no row matches.
var ErrNotFound = errors.New("not found")

// Profile is a member's self-maintained profile record.
type Profile struct {
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	UserID       string    `json:"user_id"`
	GithubHandle string    `json:"github_handle"`
	Timezone     string    `json:"timezone"`
}

// ProfileStore provides access to member profiles.
type ProfileStore struct {
	db *sql.DB
}

// Profiles returns a ProfileStore bound to the global database.
func Profiles() *ProfileStore {
	return &ProfileStore{db: GetDB()}
}

// NewProfileStore creates a ProfileStore over an explicit database handle.
func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// Upsert inserts or updates a profile. Empty fields overwrite existing
// values, so callers should read-modify-write when patching a single field.
func (s *ProfileStore) Upsert(ctx context.Context, profile *Profile) error {
	query := `
		INSERT INTO profiles (user_id, github_handle, timezone)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			github_handle = excluded.github_handle,
			timezone = excluded.timezone,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
	`

	_, err := s.db.ExecContext(ctx, query, profile.UserID, profile.GithubHandle, profile.Timezone)
	if err != nil {
		return fmt.Errorf("failed to upsert profile %s: %w", profile.UserID, err)
	}
	return nil
}

// Get returns the profile for a user, or ErrNotFound.
func (s *ProfileStore) Get(ctx context.Context, userID string) (*Profile, error) {
	query := `SELECT user_id, github_handle, timezone, created_at, updated_at FROM profiles WHERE user_id = ?`

	profile := &Profile{}
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&profile.UserID, &profile.GithubHandle, &profile.Timezone,
		&profile.CreatedAt, &profile.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile %s: %w", userID, err)
	}

	return profile, nil
}

// GetByGithubHandle returns the profile claiming a GitHub handle, or ErrNotFound.
func (s *ProfileStore) GetByGithubHandle(ctx context.Context, handle string) (*Profile, error) {
	query := `SELECT user_id, github_handle, timezone, created_at, updated_at FROM profiles WHERE github_handle = ? COLLATE NOCASE`

	profile := &Profile{}
	err := s.db.QueryRowContext(ctx, query, handle).Scan(
		&profile.UserID, &profile.GithubHandle, &profile.Timezone,
		&profile.CreatedAt, &profile.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile by handle %s: %w", handle, err)
	}

	return profile, nil
}

// Delete removes a profile. Deleting a missing profile is not an error.
func (s *ProfileStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete profile %s: %w", userID, err)
	}
	return nil
}
