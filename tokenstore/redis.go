package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Seann-Moser/socialshare/envelope"
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps encrypted records under tokens:{userID} with a TTL equal
// to the record's remaining lifetime.
type RedisStore struct {
	client redis.UniversalClient

	mu  sync.RWMutex
	key []byte
}

// NewRedisStore constructs a store on an existing Redis client. The key must
// be exactly 32 bytes.
func NewRedisStore(client redis.UniversalClient, key []byte) (*RedisStore, error) {
	if len(key) != envelope.KeySize {
		return nil, envelope.ErrInvalidKey
	}
	return &RedisStore{client: client, key: key}, nil
}

// Store encrypts and persists the record.
func (s *RedisStore) Store(ctx context.Context, record *CredentialRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	s.mu.RLock()
	doc, err := seal(s.key, record)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("tokenstore: marshal envelope: %w", err)
	}
	ttl := record.TTL(time.Now())
	if ttl <= 0 {
		return fmt.Errorf("%w: already expired", ErrInvalidRecord)
	}
	if err := s.client.Set(ctx, tokenKey(record.UserID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("tokenstore: persist %s: %w", record.UserID, err)
	}
	return nil
}

// Retrieve decrypts the stored record, deleting it lazily when expired.
func (s *RedisStore) Retrieve(ctx context.Context, userID string) (*CredentialRecord, error) {
	payload, err := s.client.Get(ctx, tokenKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tokenstore: load %s: %w", userID, err)
	}
	var doc storedRecord
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("tokenstore: decode envelope for %s: %w", userID, err)
	}
	s.mu.RLock()
	record, err := open(s.key, &doc)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if record.Expired(time.Now()) {
		if err := s.Remove(ctx, userID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return record, nil
}

// Remove deletes the record.
func (s *RedisStore) Remove(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, tokenKey(userID)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("tokenstore: remove %s: %w", userID, err)
	}
	return nil
}

// ListValid enumerates all stored records; one bad record is logged and
// skipped, never aborts the listing.
func (s *RedisStore) ListValid(ctx context.Context) ([]*CredentialRecord, error) {
	var records []*CredentialRecord
	now := time.Now()
	iter := s.client.Scan(ctx, 0, tokenKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		payload, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			slog.Warn("skipping unreadable token record", "key", key, "err", err)
			continue
		}
		var doc storedRecord
		if err := json.Unmarshal(payload, &doc); err != nil {
			slog.Warn("skipping malformed token record", "key", key, "err", err)
			continue
		}
		s.mu.RLock()
		record, err := open(s.key, &doc)
		s.mu.RUnlock()
		if err != nil {
			slog.Warn("skipping undecryptable token record", "key", key, "err", err)
			continue
		}
		if record.Expired(now) {
			slog.Warn("skipping expired token record", "key", key)
			continue
		}
		records = append(records, record)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("tokenstore: scan: %w", err)
	}
	return records, nil
}

// RotateKey re-encrypts every stored record under newKey. On partial failure
// already-migrated records are restored under the previous key and a
// *RotationError is returned.
func (s *RedisStore) RotateKey(ctx context.Context, newKey []byte) error {
	if len(newKey) != envelope.KeySize {
		return envelope.ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	migrated := make([]string, 0)
	failed := make(map[string]error)
	iter := s.client.Scan(ctx, 0, tokenKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if err := s.reseal(ctx, key, s.key, newKey); err != nil {
			failed[key] = err
			continue
		}
		migrated = append(migrated, key)
	}
	if err := iter.Err(); err != nil {
		failed["scan"] = err
	}
	if len(failed) > 0 {
		for _, key := range migrated {
			if err := s.reseal(ctx, key, newKey, s.key); err != nil {
				slog.Error("failed restoring record under previous key", "key", key, "err", err)
			}
		}
		return &RotationError{Migrated: migrated, Failed: failed}
	}
	s.key = newKey
	return nil
}

// reseal re-encrypts one record from oldKey to newKey preserving its TTL.
func (s *RedisStore) reseal(ctx context.Context, key string, oldKey, newKey []byte) error {
	payload, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	var doc storedRecord
	if err := json.Unmarshal(payload, &doc); err != nil {
		return err
	}
	record, err := open(oldKey, &doc)
	if err != nil {
		return err
	}
	resealed, err := seal(newKey, record)
	if err != nil {
		return err
	}
	out, err := json.Marshal(resealed)
	if err != nil {
		return err
	}
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = record.TTL(time.Now())
	}
	return s.client.Set(ctx, key, out, ttl).Err()
}
