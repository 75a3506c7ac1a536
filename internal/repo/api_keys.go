package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"

	"taskgate/internal/domain"
)

// HashAPIKey returns a stable SHA-256 hex digest for the provided key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// InsertAPIKey stores a hashed API key under its hash. KeyHash must already
// contain the hashed value.
func (r Repo) InsertAPIKey(ctx context.Context, key domain.APIKey) error {
	if key.ID == "" {
		return errors.New("id required")
	}
	if key.Email == "" {
		return errors.New("email required")
	}
	if key.KeyHash == "" {
		return errors.New("key_hash required")
	}
	key.Email = normalizeEmail(key.Email)
	_, err := r.put(ctx, domain.CollectionAPIKeys, key.KeyHash, key, NoVersion)
	return err
}

// GetAPIKeyByHash returns an API key by its hashed value.
func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	d, err := r.Store.Get(ctx, domain.CollectionAPIKeys, hash)
	if err != nil {
		return domain.APIKey{}, err
	}
	return decode[domain.APIKey](d)
}

// ListAPIKeys returns API keys newest first, optionally filtered by email.
func (r Repo) ListAPIKeys(ctx context.Context, email string) ([]domain.APIKey, error) {
	docs, err := r.Store.List(ctx, domain.CollectionAPIKeys)
	if err != nil {
		return nil, err
	}
	email = normalizeEmail(email)
	var keys []domain.APIKey
	for _, d := range docs {
		k, err := decode[domain.APIKey](d)
		if err != nil {
			return nil, err
		}
		if email != "" && k.Email != email {
			continue
		}
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool { return keys[i].CreatedAt > keys[j].CreatedAt })
	return keys, nil
}

// DeleteAPIKey deletes an API key by ID.
func (r Repo) DeleteAPIKey(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("id required")
	}
	keys, err := r.ListAPIKeys(ctx, "")
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k.ID == id {
			return r.Store.Delete(ctx, domain.CollectionAPIKeys, k.KeyHash, AnyVersion)
		}
	}
	return ErrNotFound
}
