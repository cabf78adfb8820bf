package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

const (
	// APIKeyPrefix lets operators recognize leaked credentials in logs and
	// scanners without consulting the database.
	APIKeyPrefix = "phk_"

	apiKeySecretBytes = 32
)

// APIKeyManager issues and validates long-lived integration credentials.
// Plaintext keys surface exactly once, at generation time; the store keeps a
// SHA-256 digest and validation is a single indexed lookup.
type APIKeyManager struct {
	repo   RepositoryManager
	logger Logger
	now    func() time.Time
}

type APIKeyOption func(*APIKeyManager)

func WithAPIKeyLogger(logger Logger) APIKeyOption {
	return func(m *APIKeyManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithAPIKeyClock(now func() time.Time) APIKeyOption {
	return func(m *APIKeyManager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewAPIKeyManager(repo RepositoryManager, opts ...APIKeyOption) *APIKeyManager {
	manager := &APIKeyManager{
		repo:   repo,
		logger: defLogger{},
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(manager)
	}

	return manager
}

// Generate creates a key for the user and returns the record plus the one
// time plaintext. expiresAt may be nil for a non-expiring key.
func (m *APIKeyManager) Generate(ctx context.Context, userID uuid.UUID, name, description string, expiresAt *time.Time) (*ApiKey, string, error) {
	if strings.TrimSpace(name) == "" {
		return nil, "", goerrors.New("api key name is required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	plaintext, err := generateAPIKey()
	if err != nil {
		return nil, "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate api key")
	}

	key := &ApiKey{
		UserID:      userID,
		KeyHash:     DigestAPIKey(plaintext),
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		ExpiresAt:   expiresAt,
		IsActive:    true,
	}

	key, err = m.repo.ApiKeys().Insert(ctx, key)
	if err != nil {
		return nil, "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist api key")
	}

	m.logger.Info("api key %q created for user %s", key.Name, userID)

	return key, plaintext, nil
}

// Validate resolves a plaintext key to its owning user. Every failure mode
// collapses to ErrInvalidCredentials so callers cannot probe key state.
func (m *APIKeyManager) Validate(ctx context.Context, plaintext string) (*User, *ApiKey, error) {
	if !strings.HasPrefix(plaintext, APIKeyPrefix) {
		return nil, nil, ErrInvalidCredentials
	}

	key, err := m.repo.ApiKeys().FindByDigest(ctx, DigestAPIKey(plaintext))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "api key lookup failed")
	}

	now := m.now()
	if !key.Usable(now) {
		return nil, nil, ErrInvalidCredentials
	}

	user, err := m.repo.Users().GetByID(ctx, key.UserID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "api key user lookup failed")
	}

	if !user.IsActive {
		return nil, nil, ErrInvalidCredentials
	}

	if err := m.repo.ApiKeys().TouchLastUsed(ctx, key.ID, now); err != nil {
		m.logger.Warn("failed to touch api key: %v", err)
	}

	return user, key, nil
}

// List returns all keys a user owns, newest first, digests included but never
// plaintext.
func (m *APIKeyManager) List(ctx context.Context, userID uuid.UUID) ([]*ApiKey, error) {
	keys, err := m.repo.ApiKeys().ListByUser(ctx, userID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list api keys")
	}
	return keys, nil
}

// Revoke deactivates a key without deleting its audit trail. Only the owner
// may revoke.
func (m *APIKeyManager) Revoke(ctx context.Context, userID, keyID uuid.UUID) error {
	key, err := m.ownedKey(ctx, userID, keyID)
	if err != nil {
		return err
	}

	if err := m.repo.ApiKeys().Deactivate(ctx, key.ID); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke api key")
	}

	m.logger.Info("api key %q revoked for user %s", key.Name, userID)

	return nil
}

// Rename updates the display fields of an owned key.
func (m *APIKeyManager) Rename(ctx context.Context, userID, keyID uuid.UUID, name, description string) error {
	key, err := m.ownedKey(ctx, userID, keyID)
	if err != nil {
		return err
	}

	if err := m.repo.ApiKeys().Rename(ctx, key.ID, strings.TrimSpace(name), strings.TrimSpace(description)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to rename api key")
	}

	return nil
}

// Delete removes an owned key permanently.
func (m *APIKeyManager) Delete(ctx context.Context, userID, keyID uuid.UUID) error {
	key, err := m.ownedKey(ctx, userID, keyID)
	if err != nil {
		return err
	}

	if err := m.repo.ApiKeys().Remove(ctx, key.ID); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete api key")
	}

	return nil
}

func (m *APIKeyManager) ownedKey(ctx context.Context, userID, keyID uuid.UUID) (*ApiKey, error) {
	key, err := m.repo.ApiKeys().FindByID(ctx, keyID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, goerrors.New("api key not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "api key lookup failed")
	}

	// Ownership mismatch reads as not found, the key's existence is private.
	if key.UserID != userID {
		return nil, goerrors.New("api key not found", goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound)
	}

	return key, nil
}

// DigestAPIKey returns the stored form of a plaintext key.
func DigestAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

func generateAPIKey() (string, error) {
	buf := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return APIKeyPrefix + hex.EncodeToString(buf), nil
}
