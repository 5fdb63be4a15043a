package models

import "time"

// Role identifies who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Intent is the task category an utterance is routed to
type Intent string

const (
	IntentEducation   Intent = "education"
	IntentSuggestion  Intent = "suggestion"
	IntentPortfolio   Intent = "portfolio"
	IntentCalculation Intent = "calculation"
	IntentGeneral     Intent = "general"
)

// ExperienceLevel is the self-declared investing experience of a user
type ExperienceLevel string

const (
	ExperienceBeginner     ExperienceLevel = "beginner"
	ExperienceIntermediate ExperienceLevel = "intermediate"
	ExperienceAdvanced     ExperienceLevel = "advanced"
)

// Message is a single conversation entry
type Message struct {
	ID             string                `json:"id"`
	Role           Role                  `json:"role"`
	Content        string                `json:"content"`
	Timestamp      time.Time             `json:"timestamp"`
	TokenEstimate  int                   `json:"token_estimate"`
	Classification *ClassificationResult `json:"classification,omitempty"`
	Safety         *SafetyVerdict        `json:"safety,omitempty"`
	SourceDevice   string                `json:"source_device,omitempty"`
}

// SessionMetadata holds running totals for a session
type SessionMetadata struct {
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	TokenTotal   int       `json:"token_total"`
	Compressed   bool      `json:"compressed"`
}

// ConversationSession is one user's conversation as written by one device
type ConversationSession struct {
	ConversationID string          `json:"conversation_id"`
	UserID         string          `json:"user_id"`
	OwnerDevice    string          `json:"owner_device,omitempty"`
	Messages       []Message       `json:"messages"`
	Summary        string          `json:"summary,omitempty"`
	Metadata       SessionMetadata `json:"metadata"`
	Archived       bool            `json:"archived"`
	Profile        *UserProfile    `json:"profile,omitempty"`
}

// Clone returns a deep copy so callers can mutate it without touching the original
func (s *ConversationSession) Clone() *ConversationSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	if s.Profile != nil {
		p := s.Profile.Clone()
		out.Profile = &p
	}
	return &out
}

// LastMessage returns the newest message, if any
func (s *ConversationSession) LastMessage() (Message, bool) {
	if s == nil || len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// UserProfile describes the learner the assistant is talking to
type UserProfile struct {
	UserID          string          `json:"user_id"`
	Age             int             `json:"age"`
	ExperienceLevel ExperienceLevel `json:"experience_level"`
	RiskTolerance   string          `json:"risk_tolerance"`
	Goals           []string        `json:"goals,omitempty"`
	Interests       []string        `json:"interests,omitempty"`
	PortfolioValue  float64         `json:"portfolio_value"`
	Budget          float64         `json:"budget"`
	ToneAdjustments []string        `json:"tone_adjustments,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Clone copies the profile including its slices
func (p UserProfile) Clone() UserProfile {
	out := p
	out.Goals = append([]string(nil), p.Goals...)
	out.Interests = append([]string(nil), p.Interests...)
	out.ToneAdjustments = append([]string(nil), p.ToneAdjustments...)
	return out
}

// Entities are the optional facts pulled out of an utterance
type Entities struct {
	Amount         string `json:"amount,omitempty"`
	Timeframe      string `json:"timeframe,omitempty"`
	InvestmentType string `json:"investment_type,omitempty"`
	Goal           string `json:"goal,omitempty"`
}

// ClassificationResult represents the result of intent analysis
type ClassificationResult struct {
	Primary         Intent   `json:"primary"`
	Categories      []Intent `json:"categories,omitempty"`
	RequiresSafety  bool     `json:"requires_safety"`
	ComplexityScore int      `json:"complexity_score"`
	Entities        Entities `json:"entities"`
}

// SafetyVerdict is the outcome of a content-policy check
type SafetyVerdict struct {
	Detected bool   `json:"detected"`
	Type     string `json:"type,omitempty"`
	Message  string `json:"message,omitempty"`
	Entity   string `json:"entity,omitempty"`
}

// DeviceSyncRecord remembers the last cross-device merge for a user
type DeviceSyncRecord struct {
	DeviceID     string    `json:"device_id"`
	LastSyncTime time.Time `json:"last_sync_time"`
	DeviceCount  int       `json:"device_count"`
}
