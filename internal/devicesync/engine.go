package devicesync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xaenox/finley/internal/conversation"
	"github.com/xaenox/finley/internal/models"
	"github.com/xaenox/finley/internal/observability"
	"github.com/xaenox/finley/internal/storage"
)

var ErrInvalidConfig = errors.New("devicesync: invalid config")

type Config struct {
	// Staleness is how old the last sync must be before the same device
	// triggers another merge.
	// Default: 30m
	Staleness time.Duration `mapstructure:"staleness"`
}

func DefaultConfig() Config {
	return Config{Staleness: 30 * time.Minute}
}

func (c Config) Validate() error {
	if c.Staleness < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Result describes one Sync call. When Skipped is set, Session is nil.
type Result struct {
	Session     *models.ConversationSession
	Profile     *models.UserProfile
	DeviceCount int
	Skipped     bool
}

// Engine merges the per-device sessions of a user on demand.
type Engine struct {
	store      storage.Storage
	compressor *conversation.Compressor
	cfg        Config
	sink       observability.Sink
	logger     *zap.Logger
	now        func() time.Time
}

func NewEngine(store storage.Storage, compressor *conversation.Compressor, cfg Config, sink observability.Sink, logger *zap.Logger) *Engine {
	if compressor == nil {
		compressor = conversation.NewCompressor(conversation.DefaultConfig())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:      store,
		compressor: compressor,
		cfg:        cfg,
		sink:       observability.Safe(sink),
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock replaces the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// ShouldSync reports whether deviceID needs a merge given the last record.
func (e *Engine) ShouldSync(record *models.DeviceSyncRecord, deviceID string, now time.Time) bool {
	if record == nil || record.DeviceID != deviceID {
		return true
	}
	return now.Sub(record.LastSyncTime) > e.cfg.Staleness
}

// Sync merges every device session of the user into the session owned by
// deviceID and persists it. Devices whose session cannot be read are
// skipped.
func (e *Engine) Sync(ctx context.Context, userID, deviceID string) (*Result, error) {
	now := e.now()

	record, err := e.store.LoadSyncRecord(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !e.ShouldSync(record, deviceID, now) {
		e.sink.Record(observability.EventSyncSkipped, map[string]any{
			"user_id":   userID,
			"device_id": deviceID,
		})
		return &Result{Skipped: true, DeviceCount: record.DeviceCount}, nil
	}

	devices, err := e.store.ListDevices(ctx, userID)
	if err != nil {
		return nil, err
	}

	sessions := e.loadDeviceSessions(ctx, userID, devices)

	// The invoking device's messages go first so its copies win duplicates.
	var own *models.ConversationSession
	sets := make([][]models.Message, 1, len(sessions)+1)
	profiles := make([]*models.UserProfile, 0, len(sessions))
	for _, s := range sessions {
		if s == nil {
			continue
		}
		if s.OwnerDevice == deviceID {
			own = s
			sets[0] = s.Messages
		} else {
			sets = append(sets, s.Messages)
		}
		profiles = append(profiles, s.Profile)
	}

	merged := e.mergeInto(own, sessions, userID, deviceID, now)
	merged.Messages = MergeMessages(sets...)
	if merged.Metadata.MessageCount < len(merged.Messages) {
		merged.Metadata.MessageCount = len(merged.Messages)
	}
	if len(merged.Messages) > e.compressor.Config().RetentionCap && e.compressor.Compress(merged) {
		e.sink.Record(observability.EventCompression, map[string]any{
			"conversation_id": merged.ConversationID,
			"kept":            len(merged.Messages),
			"topic":           e.compressor.Topic(merged.Messages),
		})
	}
	conversation.Recount(merged)

	stored, err := e.store.LoadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile := ReconcileProfiles(append([]*models.UserProfile{stored}, profiles...)...)
	merged.Profile = profile

	if err := e.store.Save(ctx, merged); err != nil {
		return nil, err
	}
	if profile != nil {
		if err := e.store.SaveProfile(ctx, profile); err != nil {
			return nil, err
		}
	}

	deviceCount := countDevices(devices, deviceID)
	if err := e.store.SaveSyncRecord(ctx, userID, &models.DeviceSyncRecord{
		DeviceID:     deviceID,
		LastSyncTime: now,
		DeviceCount:  deviceCount,
	}); err != nil {
		return nil, err
	}

	e.logger.Info("Merged device sessions",
		zap.String("user_id", userID),
		zap.String("device_id", deviceID),
		zap.Int("devices", deviceCount),
		zap.Int("messages", len(merged.Messages)))
	e.sink.Record(observability.EventDeviceSync, map[string]any{
		"user_id":      userID,
		"device_id":    deviceID,
		"device_count": deviceCount,
		"messages":     len(merged.Messages),
	})

	return &Result{Session: merged, Profile: profile, DeviceCount: deviceCount}, nil
}

// loadDeviceSessions reads each device's session concurrently. Failed or
// missing reads leave a nil slot.
func (e *Engine) loadDeviceSessions(ctx context.Context, userID string, devices []string) []*models.ConversationSession {
	sessions := make([]*models.ConversationSession, len(devices))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, device := range devices {
		i, device := i, device
		eg.Go(func() error {
			session, err := e.store.LoadDeviceSession(egCtx, userID, device)
			if err != nil {
				e.logger.Warn("Skipping unreadable device session",
					zap.String("user_id", userID),
					zap.String("device_id", device),
					zap.Error(err))
				return nil
			}
			sessions[i] = session
			return nil
		})
	}
	_ = eg.Wait()
	return sessions
}

// mergeInto picks the session that receives the merged history: the
// invoking device's own session when it has one, otherwise a new one.
func (e *Engine) mergeInto(own *models.ConversationSession, sessions []*models.ConversationSession, userID, deviceID string, now time.Time) *models.ConversationSession {
	var target *models.ConversationSession
	if own != nil {
		target = own.Clone()
	} else {
		target = conversation.NewSession(userID, deviceID, now)
	}
	target.OwnerDevice = deviceID

	for _, s := range sessions {
		if s == nil {
			continue
		}
		if s.Metadata.MessageCount > target.Metadata.MessageCount {
			target.Metadata.MessageCount = s.Metadata.MessageCount
		}
		if s.Metadata.CreatedAt.Before(target.Metadata.CreatedAt) {
			target.Metadata.CreatedAt = s.Metadata.CreatedAt
		}
		if target.Summary == "" && s.Summary != "" {
			target.Summary = s.Summary
			target.Metadata.Compressed = true
		}
	}
	target.Metadata.UpdatedAt = now
	return target
}

func countDevices(devices []string, deviceID string) int {
	for _, d := range devices {
		if d == deviceID {
			return len(devices)
		}
	}
	return len(devices) + 1
}
