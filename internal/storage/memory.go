package storage

import (
	"context"
	"sync"

	"github.com/xaenox/finley/internal/models"
)

type MemoryStorage struct {
	mu       sync.RWMutex
	closed   bool
	sessions map[string]map[string]*models.ConversationSession
	profiles map[string]*models.UserProfile
	syncs    map[string]*models.DeviceSyncRecord
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[string]map[string]*models.ConversationSession),
		profiles: make(map[string]*models.UserProfile),
		syncs:    make(map[string]*models.DeviceSyncRecord),
	}
}

func (s *MemoryStorage) Load(ctx context.Context, userID, conversationID string) (*models.ConversationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	if session, exists := s.sessions[userID][conversationID]; exists {
		return session.Clone(), nil
	}
	return nil, nil
}

func (s *MemoryStorage) Save(ctx context.Context, session *models.ConversationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	byID, exists := s.sessions[session.UserID]
	if !exists {
		byID = make(map[string]*models.ConversationSession)
		s.sessions[session.UserID] = byID
	}
	byID[session.ConversationID] = session.Clone()
	return nil
}

func (s *MemoryStorage) ListForUser(ctx context.Context, userID string) ([]*models.ConversationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	sessions := make([]*models.ConversationSession, 0, len(s.sessions[userID]))
	for _, session := range s.sessions[userID] {
		sessions = append(sessions, session.Clone())
	}
	newestFirst(sessions)
	return sessions, nil
}

func (s *MemoryStorage) ListDevices(ctx context.Context, userID string) ([]string, error) {
	sessions, err := s.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return activeDevices(sessions), nil
}

func (s *MemoryStorage) LoadDeviceSession(ctx context.Context, userID, deviceID string) (*models.ConversationSession, error) {
	sessions, err := s.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return latestForDevice(sessions, deviceID), nil
}

func (s *MemoryStorage) LoadProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	if profile, exists := s.profiles[userID]; exists {
		p := profile.Clone()
		return &p, nil
	}
	return nil, nil
}

func (s *MemoryStorage) SaveProfile(ctx context.Context, profile *models.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	p := profile.Clone()
	s.profiles[profile.UserID] = &p
	return nil
}

func (s *MemoryStorage) LoadSyncRecord(ctx context.Context, userID string) (*models.DeviceSyncRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	if record, exists := s.syncs[userID]; exists {
		r := *record
		return &r, nil
	}
	return nil, nil
}

func (s *MemoryStorage) SaveSyncRecord(ctx context.Context, userID string, record *models.DeviceSyncRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	r := *record
	s.syncs[userID] = &r
	return nil
}

func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
