package tokenstore

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Seann-Moser/socialshare/envelope"
)

var _ Store = (*MemoryStore)(nil)

type memoryEntry struct {
	doc       *storedRecord
	expiresAt time.Time
}

// MemoryStore is an in-process Store for tests and single-node deployments
// without Redis or Mongo. Records are still envelope-encrypted so rotation
// and corruption behavior match the persistent backends.
type MemoryStore struct {
	now func() time.Time

	mu      sync.Mutex
	key     []byte
	entries map[string]*memoryEntry
}

// NewMemoryStore constructs an in-memory store. The key must be exactly 32 bytes.
func NewMemoryStore(key []byte) (*MemoryStore, error) {
	if len(key) != envelope.KeySize {
		return nil, envelope.ErrInvalidKey
	}
	return &MemoryStore{
		now:     time.Now,
		key:     key,
		entries: make(map[string]*memoryEntry),
	}, nil
}

// Store encrypts and keeps the record with its TTL.
func (s *MemoryStore) Store(ctx context.Context, record *CredentialRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := seal(s.key, record)
	if err != nil {
		return err
	}
	s.entries[record.UserID] = &memoryEntry{
		doc:       doc,
		expiresAt: s.now().Add(record.TTL(s.now())),
	}
	return nil
}

// Retrieve decrypts the stored record, deleting it lazily when expired.
func (s *MemoryStore) Retrieve(ctx context.Context, userID string) (*CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[userID]
	if !ok {
		return nil, nil
	}
	now := s.now()
	if now.After(entry.expiresAt) {
		delete(s.entries, userID)
		return nil, nil
	}
	record, err := open(s.key, entry.doc)
	if err != nil {
		return nil, err
	}
	if record.Expired(now) {
		delete(s.entries, userID)
		return nil, nil
	}
	return record, nil
}

// Remove deletes the record.
func (s *MemoryStore) Remove(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
	return nil
}

// ListValid returns all decryptable, unexpired records.
func (s *MemoryStore) ListValid(ctx context.Context) ([]*CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	userIDs := make([]string, 0, len(s.entries))
	for userID := range s.entries {
		userIDs = append(userIDs, userID)
	}
	sort.Strings(userIDs)
	var records []*CredentialRecord
	for _, userID := range userIDs {
		entry := s.entries[userID]
		if now.After(entry.expiresAt) {
			continue
		}
		record, err := open(s.key, entry.doc)
		if err != nil {
			slog.Warn("skipping undecryptable token record", "user_id", userID, "err", err)
			continue
		}
		if record.Expired(now) {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// RotateKey re-encrypts every record under newKey, restoring the previous
// key on partial failure.
func (s *MemoryStore) RotateKey(ctx context.Context, newKey []byte) error {
	if len(newKey) != envelope.KeySize {
		return envelope.ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	migrated := make([]string, 0, len(s.entries))
	failed := make(map[string]error)
	resealed := make(map[string]*storedRecord, len(s.entries))
	for userID, entry := range s.entries {
		record, err := open(s.key, entry.doc)
		if err != nil {
			failed[userID] = err
			continue
		}
		doc, err := seal(newKey, record)
		if err != nil {
			failed[userID] = err
			continue
		}
		resealed[userID] = doc
		migrated = append(migrated, userID)
	}
	if len(failed) > 0 {
		return &RotationError{Migrated: migrated, Failed: failed}
	}
	for userID, doc := range resealed {
		s.entries[userID].doc = doc
	}
	s.key = newKey
	return nil
}
