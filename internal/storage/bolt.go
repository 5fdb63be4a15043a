package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/xaenox/finley/internal/models"
)

// Different logical datasets are kept in separate buckets of one file.
var (
	bucketConversations = []byte("conversations")
	bucketProfiles      = []byte("profiles")
	bucketSync          = []byte("device_sync")
)

const keySeparator = 0x00

// BoltStorage is the document-oriented backend: each record is a JSON
// document keyed by user (and conversation) id.
type BoltStorage struct {
	mu     sync.RWMutex
	db     *bolt.DB
	logger *zap.Logger
}

func NewBoltStorage(path string, logger *zap.Logger) (*BoltStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("error creating data directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("error opening bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketConversations, bucketProfiles, bucketSync} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error creating buckets: %w", err)
	}

	return &BoltStorage{db: db, logger: logger}, nil
}

func conversationKey(userID, conversationID string) []byte {
	key := make([]byte, 0, len(userID)+len(conversationID)+1)
	key = append(key, userID...)
	key = append(key, keySeparator)
	return append(key, conversationID...)
}

func userPrefix(userID string) []byte {
	return append([]byte(userID), keySeparator)
}

func (s *BoltStorage) view(fn func(tx *bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	return s.db.View(fn)
}

func (s *BoltStorage) update(fn func(tx *bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Update(fn)
}

func (s *BoltStorage) put(bucket, key []byte, v any) error {
	enc, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, enc)
	})
}

// get decodes the document at key into v and reports whether it was found.
func (s *BoltStorage) get(bucket, key []byte, v any) (bool, error) {
	var raw []byte
	err := s.view(func(tx *bolt.Tx) error {
		if data := tx.Bucket(bucket).Get(key); data != nil {
			raw = append([]byte(nil), data...)
		}
		return nil
	})
	if err != nil || raw == nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *BoltStorage) Load(ctx context.Context, userID, conversationID string) (*models.ConversationSession, error) {
	var session models.ConversationSession
	found, err := s.get(bucketConversations, conversationKey(userID, conversationID), &session)
	if err != nil {
		return nil, fmt.Errorf("error loading session: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &session, nil
}

func (s *BoltStorage) Save(ctx context.Context, session *models.ConversationSession) error {
	key := conversationKey(session.UserID, session.ConversationID)
	if err := s.put(bucketConversations, key, session); err != nil {
		return fmt.Errorf("error saving session: %w", err)
	}
	return nil
}

func (s *BoltStorage) ListForUser(ctx context.Context, userID string) ([]*models.ConversationSession, error) {
	sessions := []*models.ConversationSession{}
	prefix := userPrefix(userID)
	err := s.view(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketConversations).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var session models.ConversationSession
			if err := json.Unmarshal(v, &session); err != nil {
				// Skip malformed documents instead of failing the whole list
				s.logger.Warn("Skipping malformed session document",
					zap.String("key", string(k)),
					zap.Error(err))
				continue
			}
			sessions = append(sessions, &session)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error listing sessions: %w", err)
	}
	newestFirst(sessions)
	return sessions, nil
}

func (s *BoltStorage) ListDevices(ctx context.Context, userID string) ([]string, error) {
	sessions, err := s.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return activeDevices(sessions), nil
}

func (s *BoltStorage) LoadDeviceSession(ctx context.Context, userID, deviceID string) (*models.ConversationSession, error) {
	sessions, err := s.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return latestForDevice(sessions, deviceID), nil
}

func (s *BoltStorage) LoadProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	found, err := s.get(bucketProfiles, []byte(userID), &profile)
	if err != nil {
		return nil, fmt.Errorf("error loading profile: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &profile, nil
}

func (s *BoltStorage) SaveProfile(ctx context.Context, profile *models.UserProfile) error {
	if err := s.put(bucketProfiles, []byte(profile.UserID), profile); err != nil {
		return fmt.Errorf("error saving profile: %w", err)
	}
	return nil
}

func (s *BoltStorage) LoadSyncRecord(ctx context.Context, userID string) (*models.DeviceSyncRecord, error) {
	var record models.DeviceSyncRecord
	found, err := s.get(bucketSync, []byte(userID), &record)
	if err != nil {
		return nil, fmt.Errorf("error loading sync record: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &record, nil
}

func (s *BoltStorage) SaveSyncRecord(ctx context.Context, userID string, record *models.DeviceSyncRecord) error {
	if err := s.put(bucketSync, []byte(userID), record); err != nil {
		return fmt.Errorf("error saving sync record: %w", err)
	}
	return nil
}

func (s *BoltStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
