// Package storage persists conversation sessions, learner profiles and
// device sync records. Backends: in-memory, PostgreSQL and bbolt.
package storage

import (
	"context"
	"errors"
	"sort"

	"github.com/xaenox/finley/internal/models"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("storage: closed")

// Storage is the persistence collaborator. Loads of absent records return
// (nil, nil).
type Storage interface {
	Load(ctx context.Context, userID, conversationID string) (*models.ConversationSession, error)
	Save(ctx context.Context, session *models.ConversationSession) error
	// ListForUser returns every session of the user, newest first.
	ListForUser(ctx context.Context, userID string) ([]*models.ConversationSession, error)
	// ListDevices returns the sorted owner devices of the user's active sessions.
	ListDevices(ctx context.Context, userID string) ([]string, error)
	// LoadDeviceSession returns the device's most recently updated active session.
	LoadDeviceSession(ctx context.Context, userID, deviceID string) (*models.ConversationSession, error)

	ProfileStorage
	SyncStorage

	Close() error
}

type ProfileStorage interface {
	LoadProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	SaveProfile(ctx context.Context, profile *models.UserProfile) error
}

type SyncStorage interface {
	LoadSyncRecord(ctx context.Context, userID string) (*models.DeviceSyncRecord, error)
	SaveSyncRecord(ctx context.Context, userID string, record *models.DeviceSyncRecord) error
}

func newestFirst(sessions []*models.ConversationSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].Metadata.UpdatedAt.After(sessions[j].Metadata.UpdatedAt)
	})
}

func activeDevices(sessions []*models.ConversationSession) []string {
	seen := make(map[string]bool)
	devices := []string{}
	for _, s := range sessions {
		if s.Archived || s.OwnerDevice == "" || seen[s.OwnerDevice] {
			continue
		}
		seen[s.OwnerDevice] = true
		devices = append(devices, s.OwnerDevice)
	}
	sort.Strings(devices)
	return devices
}

// latestForDevice expects sessions newest first.
func latestForDevice(sessions []*models.ConversationSession, deviceID string) *models.ConversationSession {
	for _, s := range sessions {
		if !s.Archived && s.OwnerDevice == deviceID {
			return s
		}
	}
	return nil
}
