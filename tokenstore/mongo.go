package tokenstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Seann-Moser/socialshare/envelope"
)

var _ Store = (*MongoStore)(nil)

// MongoStore keeps encrypted records in a collection with a TTL index on
// expires_at, so Mongo reaps expired documents the way Redis TTLs do.
type MongoStore struct {
	tokens *mongo.Collection

	mu  sync.RWMutex
	key []byte
}

// NewMongoStore creates a store backed by the given DB. Expects a connected
// mongo.Database. The key must be exactly 32 bytes.
func NewMongoStore(db *mongo.Database, key []byte) (*MongoStore, error) {
	if len(key) != envelope.KeySize {
		return nil, envelope.ErrInvalidKey
	}
	return &MongoStore{tokens: db.Collection("social_tokens"), key: key}, nil
}

// EnsureIndexes creates the TTL index. Call once at startup.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "ttl_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("tokenstore: ttl index: %w", err)
	}
	return nil
}

// Store encrypts and upserts the record.
func (s *MongoStore) Store(ctx context.Context, record *CredentialRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	s.mu.RLock()
	doc, err := seal(s.key, record)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	ttl := record.TTL(time.Now())
	if ttl <= 0 {
		return fmt.Errorf("%w: already expired", ErrInvalidRecord)
	}
	update := bson.M{"$set": bson.M{
		"ciphertext": doc.Ciphertext,
		"iv":         doc.IV,
		"auth_tag":   doc.AuthTag,
		"user_id":    doc.UserID,
		"username":   doc.Username,
		"created_at": doc.CreatedAt,
		"expires_at": doc.ExpiresAt,
		"ttl_at":     time.Now().Add(ttl),
	}}
	opts := options.Update().SetUpsert(true)
	if _, err := s.tokens.UpdateOne(ctx, bson.M{"user_id": record.UserID}, update, opts); err != nil {
		return fmt.Errorf("tokenstore: persist %s: %w", record.UserID, err)
	}
	return nil
}

// Retrieve decrypts the stored record, deleting it lazily when expired.
func (s *MongoStore) Retrieve(ctx context.Context, userID string) (*CredentialRecord, error) {
	var doc storedRecord
	err := s.tokens.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tokenstore: load %s: %w", userID, err)
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
func (s *MongoStore) Remove(ctx context.Context, userID string) error {
	if _, err := s.tokens.DeleteOne(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("tokenstore: remove %s: %w", userID, err)
	}
	return nil
}

// ListValid enumerates all stored records, skipping any that fail to decrypt
// or have expired.
func (s *MongoStore) ListValid(ctx context.Context) ([]*CredentialRecord, error) {
	cursor, err := s.tokens.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("tokenstore: list: %w", err)
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	now := time.Now()
	var records []*CredentialRecord
	for cursor.Next(ctx) {
		var doc storedRecord
		if err := cursor.Decode(&doc); err != nil {
			slog.Warn("skipping malformed token record", "err", err)
			continue
		}
		s.mu.RLock()
		record, err := open(s.key, &doc)
		s.mu.RUnlock()
		if err != nil {
			slog.Warn("skipping undecryptable token record", "user_id", doc.UserID, "err", err)
			continue
		}
		if record.Expired(now) {
			continue
		}
		records = append(records, record)
	}
	return records, cursor.Err()
}

// RotateKey re-encrypts every document under newKey, restoring already
// migrated documents under the previous key on partial failure.
func (s *MongoStore) RotateKey(ctx context.Context, newKey []byte) error {
	if len(newKey) != envelope.KeySize {
		return envelope.ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cursor, err := s.tokens.Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("tokenstore: rotate scan: %w", err)
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	migrated := make([]string, 0)
	failed := make(map[string]error)
	for cursor.Next(ctx) {
		var doc storedRecord
		if err := cursor.Decode(&doc); err != nil {
			failed["<decode>"] = err
			continue
		}
		if err := s.reseal(ctx, &doc, s.key, newKey); err != nil {
			failed[doc.UserID] = err
			continue
		}
		migrated = append(migrated, doc.UserID)
	}
	if err := cursor.Err(); err != nil {
		failed["<cursor>"] = err
	}
	if len(failed) > 0 {
		for _, userID := range migrated {
			var doc storedRecord
			if err := s.tokens.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc); err != nil {
				slog.Error("failed reloading record for key restore", "user_id", userID, "err", err)
				continue
			}
			if err := s.reseal(ctx, &doc, newKey, s.key); err != nil {
				slog.Error("failed restoring record under previous key", "user_id", userID, "err", err)
			}
		}
		return &RotationError{Migrated: migrated, Failed: failed}
	}
	s.key = newKey
	return nil
}

func (s *MongoStore) reseal(ctx context.Context, doc *storedRecord, oldKey, newKey []byte) error {
	record, err := open(oldKey, doc)
	if err != nil {
		return err
	}
	resealed, err := seal(newKey, record)
	if err != nil {
		return err
	}
	update := bson.M{"$set": bson.M{
		"ciphertext": resealed.Ciphertext,
		"iv":         resealed.IV,
		"auth_tag":   resealed.AuthTag,
	}}
	_, err = s.tokens.UpdateOne(ctx, bson.M{"user_id": doc.UserID}, update)
	return err
}
