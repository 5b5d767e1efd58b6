package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seann-Moser/socialshare/envelope"
)

// DefaultTTL is the stored lifetime for records without an expiry.
const DefaultTTL = 24 * time.Hour

var (
	// ErrInvalidRecord is returned for records that violate the model
	// invariants (empty access token, expiry not after creation).
	ErrInvalidRecord = errors.New("tokenstore: invalid credential record")
)

// CredentialRecord holds one user's platform credentials.
type CredentialRecord struct {
	UserID       string     `json:"user_id"`
	Username     string     `json:"username"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	Scope        []string   `json:"scope,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Validate enforces the record invariants.
func (r *CredentialRecord) Validate() error {
	if r.UserID == "" || strings.TrimSpace(r.AccessToken) == "" {
		return ErrInvalidRecord
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(r.CreatedAt) {
		return fmt.Errorf("%w: expiry not after creation", ErrInvalidRecord)
	}
	return nil
}

// Expired reports whether the record's expiry has passed.
func (r *CredentialRecord) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// TTL returns the remaining lifetime, or DefaultTTL when no expiry is set.
func (r *CredentialRecord) TTL(now time.Time) time.Duration {
	if r.ExpiresAt == nil {
		return DefaultTTL
	}
	return r.ExpiresAt.Sub(now)
}

// RotationError reports a partially failed key rotation. Records listed in
// Migrated were re-encrypted back under the previous key; Failed maps user IDs
// to the error that stopped their migration.
type RotationError struct {
	Migrated []string
	Failed   map[string]error
}

func (e *RotationError) Error() string {
	return fmt.Sprintf("tokenstore: key rotation failed for %d of %d records, previous key restored",
		len(e.Failed), len(e.Failed)+len(e.Migrated))
}

// Store persists encrypted credential records keyed by user ID.
type Store interface {
	// Store serializes, encrypts, and persists the record with a TTL equal to
	// its remaining lifetime (or DefaultTTL when it has none).
	Store(ctx context.Context, record *CredentialRecord) error
	// Retrieve returns the decrypted record, or nil when absent. A record
	// whose expiry has passed is deleted and nil is returned.
	Retrieve(ctx context.Context, userID string) (*CredentialRecord, error)
	// Remove deletes the record for the user.
	Remove(ctx context.Context, userID string) error
	// ListValid decrypts every stored record, skipping (and logging) records
	// that fail to decrypt or have expired.
	ListValid(ctx context.Context) ([]*CredentialRecord, error)
	// RotateKey re-encrypts every record under newKey. newKey must be exactly
	// 32 bytes. A partial failure restores the previous key and returns a
	// *RotationError.
	RotateKey(ctx context.Context, newKey []byte) error
}

// storedRecord is the persisted shape: the envelope plus the unencrypted
// metadata needed for listing and expiry without decryption.
type storedRecord struct {
	Ciphertext []byte     `json:"ciphertext" bson:"ciphertext"`
	IV         []byte     `json:"iv" bson:"iv"`
	AuthTag    []byte     `json:"auth_tag" bson:"auth_tag"`
	UserID     string     `json:"user_id" bson:"user_id"`
	Username   string     `json:"username" bson:"username"`
	CreatedAt  time.Time  `json:"created_at" bson:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
}

func seal(key []byte, record *CredentialRecord) (*storedRecord, error) {
	plaintext, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("tokenstore: marshal record: %w", err)
	}
	env, err := envelope.Encrypt(key, plaintext)
	if err != nil {
		return nil, err
	}
	return &storedRecord{
		Ciphertext: env.Ciphertext,
		IV:         env.IV,
		AuthTag:    env.AuthTag,
		UserID:     record.UserID,
		Username:   record.Username,
		CreatedAt:  record.CreatedAt,
		ExpiresAt:  record.ExpiresAt,
	}, nil
}

func open(key []byte, doc *storedRecord) (*CredentialRecord, error) {
	plaintext, err := envelope.Decrypt(key, &envelope.Envelope{
		Ciphertext: doc.Ciphertext,
		IV:         doc.IV,
		AuthTag:    doc.AuthTag,
	})
	if err != nil {
		return nil, err
	}
	var record CredentialRecord
	if err := json.Unmarshal(plaintext, &record); err != nil {
		return nil, fmt.Errorf("tokenstore: unmarshal record: %w", err)
	}
	return &record, nil
}

func tokenKey(userID string) string {
	return "tokens:" + userID
}
