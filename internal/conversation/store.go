package conversation

import (
	"time"

	"github.com/google/uuid"

	"github.com/xaenox/finley/internal/models"
)

// Tagger classifies user messages as they are appended.
type Tagger interface {
	Classify(text string) models.ClassificationResult
}

// Store is an append-only view over one session that keeps the running
// totals and the retention cap in step with the message list.
type Store struct {
	session    *models.ConversationSession
	tagger     Tagger
	compressor *Compressor
}

// NewSession starts an empty session owned by deviceID.
func NewSession(userID, deviceID string, now time.Time) *models.ConversationSession {
	return &models.ConversationSession{
		ConversationID: uuid.New().String(),
		UserID:         userID,
		OwnerDevice:    deviceID,
		Messages:       []models.Message{},
		Metadata: models.SessionMetadata{
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// NewStore wraps session. A nil compressor gets the default limits.
func NewStore(session *models.ConversationSession, tagger Tagger, compressor *Compressor) *Store {
	if compressor == nil {
		compressor = NewCompressor(DefaultConfig())
	}
	return &Store{
		session:    session,
		tagger:     tagger,
		compressor: compressor,
	}
}

func (s *Store) Session() *models.ConversationSession {
	return s.session
}

func (s *Store) Messages() []models.Message {
	return s.session.Messages
}

// Append builds a message from its parts and appends it.
func (s *Store) Append(role models.Role, content string, ts time.Time, device string) models.Message {
	return s.AppendMessage(models.Message{
		Role:         role,
		Content:      content,
		Timestamp:    ts,
		SourceDevice: device,
	})
}

// AppendMessage fills in ID, token estimate and (for user messages) the
// classification, keeps timestamps non-decreasing and updates the totals.
func (s *Store) AppendMessage(msg models.Message) models.Message {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.TokenEstimate = EstimateTokens(msg.Content)
	if msg.Role == models.RoleUser && msg.Classification == nil && s.tagger != nil {
		result := s.tagger.Classify(msg.Content)
		msg.Classification = &result
	}
	if last, ok := s.session.LastMessage(); ok && msg.Timestamp.Before(last.Timestamp) {
		msg.Timestamp = last.Timestamp
	}

	s.session.Messages = append(s.session.Messages, msg)
	s.session.Metadata.MessageCount++
	s.session.Metadata.TokenTotal += msg.TokenEstimate
	if msg.Timestamp.After(s.session.Metadata.UpdatedAt) {
		s.session.Metadata.UpdatedAt = msg.Timestamp
	}

	if len(s.session.Messages) > s.compressor.cfg.RetentionCap {
		s.compressor.Compress(s.session)
	}
	return msg
}

// Recount recomputes the token total from the message list.
func Recount(session *models.ConversationSession) {
	session.Metadata.TokenTotal = EstimateMessages(session.Messages)
}
