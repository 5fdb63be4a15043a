// Package router runs one conversational turn end to end: validate,
// classify, screen the input, gather context, build the prompt, call the
// model, screen the output, then append and persist.
package router

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/finley/internal/classifier"
	"github.com/xaenox/finley/internal/conversation"
	"github.com/xaenox/finley/internal/devicesync"
	"github.com/xaenox/finley/internal/llm"
	"github.com/xaenox/finley/internal/models"
	"github.com/xaenox/finley/internal/observability"
	"github.com/xaenox/finley/internal/prompt"
	"github.com/xaenox/finley/internal/safety"
	"github.com/xaenox/finley/internal/storage"
)

var ErrNilSession = errors.New("router: nil session")

// Dependencies are the collaborators of a Router. Store and Model are
// required; the rest fall back to defaults.
type Dependencies struct {
	Store       storage.Storage
	Model       llm.Model
	Classifier  classifier.Classifier
	Guard       *safety.Guard
	Compressor  *conversation.Compressor
	Synthesizer *prompt.Synthesizer
	Sync        *devicesync.Engine
	Sink        observability.Sink
	Logger      *zap.Logger
	Now         func() time.Time
}

// TurnResult is the outcome of ProcessTurn. Session is an updated copy;
// the session passed in is left untouched.
type TurnResult struct {
	Session          *models.ConversationSession
	AssistantMessage models.Message
	Blocked          bool
	Escalated        bool
}

type Router struct {
	store       storage.Storage
	model       llm.Model
	classifier  classifier.Classifier
	guard       *safety.Guard
	compressor  *conversation.Compressor
	synthesizer *prompt.Synthesizer
	sync        *devicesync.Engine
	sink        observability.Sink
	logger      *zap.Logger
	now         func() time.Time
	cfg         Config
}

func New(deps Dependencies, cfg Config) (*Router, error) {
	if deps.Store == nil || deps.Model == nil {
		return nil, errors.New("router: store and model are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Router{
		store:       deps.Store,
		model:       deps.Model,
		classifier:  deps.Classifier,
		guard:       deps.Guard,
		compressor:  deps.Compressor,
		synthesizer: deps.Synthesizer,
		sync:        deps.Sync,
		sink:        observability.Safe(deps.Sink),
		logger:      deps.Logger,
		now:         deps.Now,
		cfg:         cfg,
	}
	if r.classifier == nil {
		r.classifier = classifier.NewIntentClassifier()
	}
	if r.guard == nil {
		r.guard = safety.NewGuard(0, 0)
	}
	if r.compressor == nil {
		r.compressor = conversation.NewCompressor(conversation.DefaultConfig())
	}
	if r.synthesizer == nil {
		r.synthesizer = prompt.NewSynthesizer()
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.sync == nil {
		r.sync = devicesync.NewEngine(r.store, r.compressor, devicesync.DefaultConfig(), r.sink, r.logger).
			WithClock(r.now)
	}
	return r, nil
}

func (r *Router) Classify(text string) models.ClassificationResult {
	return r.classifier.Classify(text)
}

func (r *Router) CheckSafety(text string, profile models.UserProfile) models.SafetyVerdict {
	return r.guard.Check(text, profile)
}

// ProcessTurn appends one user message and one assistant reply to a copy of
// session and persists it with profile attached as the device's snapshot.
// Model and storage errors are returned unchanged with no session, unless
// FallbackOnModelError covers a model error.
func (r *Router) ProcessTurn(ctx context.Context, session *models.ConversationSession, userText string, profile models.UserProfile) (*TurnResult, error) {
	if session == nil {
		return nil, ErrNilSession
	}

	working := session.Clone()
	snapshot := profile.Clone()
	if snapshot.UserID == "" {
		snapshot.UserID = working.UserID
	}
	working.Profile = &snapshot
	store := conversation.NewStore(working, r.classifier, r.compressor)
	device := working.OwnerDevice
	if device == "" {
		device = r.cfg.DeviceID
	}
	result := &TurnResult{Session: working}

	if err := r.guard.ValidateInput(userText); err != nil {
		r.logger.Info("Rejected user input",
			zap.String("user_id", working.UserID),
			zap.Error(err))
		r.sink.Record(observability.EventInputInvalid, map[string]any{
			"user_id": working.UserID,
			"reason":  err.Error(),
		})
		store.Append(models.RoleUser, r.guard.Sanitize(userText), r.now(), device)
		result.AssistantMessage = store.Append(models.RoleAssistant, ReplyNotUnderstood, r.now(), device)
		return r.finish(ctx, result)
	}

	classification := r.classifier.ClassifyWithContext(userText, working.Summary)
	r.sink.Record(observability.EventClassification, map[string]any{
		"user_id":         working.UserID,
		"intent":          string(classification.Primary),
		"complexity":      classification.ComplexityScore,
		"requires_safety": classification.RequiresSafety,
	})
	userMsg := models.Message{
		Role:           models.RoleUser,
		Content:        userText,
		Timestamp:      r.now(),
		Classification: &classification,
		SourceDevice:   device,
	}

	if verdict := r.guard.Check(userText, profile); verdict.Detected {
		verdict = redactVerdict(verdict)
		r.sink.Record(observability.EventInputBlocked, map[string]any{
			"user_id": working.UserID,
			"type":    verdict.Type,
			"entity":  verdict.Entity,
		})
		reply := verdict.Message
		if reply == "" {
			reply = ReplySafetyConcern
		}
		// The blocked text itself is never stored.
		placeholder := RemovedContent(verdict.Type)
		placeholderClass := r.classifier.Classify(placeholder)
		userMsg.Content = placeholder
		userMsg.Classification = &placeholderClass
		userMsg.Safety = &verdict
		store.AppendMessage(userMsg)
		result.AssistantMessage = store.AppendMessage(models.Message{
			Role:         models.RoleAssistant,
			Content:      reply,
			Timestamp:    r.now(),
			Safety:       &verdict,
			SourceDevice: device,
		})
		result.Blocked = true
		return r.finish(ctx, result)
	}

	history := r.compressor.GetRelevantContext(working.Messages, userText, r.cfg.ContextTokenBudget)
	system := r.synthesizer.Build(classification.Primary, profile, working.Summary)
	promptText := r.synthesizer.Compose(system, history, userText)

	opts := r.cfg.Light
	if classification.ComplexityScore >= r.cfg.EscalationThreshold {
		opts = r.cfg.Escalated
		result.Escalated = true
		r.sink.Record(observability.EventEscalation, map[string]any{
			"user_id":    working.UserID,
			"complexity": classification.ComplexityScore,
		})
	}

	reply := models.Message{Role: models.RoleAssistant, SourceDevice: device}
	gen, err := r.model.Generate(ctx, promptText, opts)
	switch {
	case err != nil:
		r.logger.Error("Failed to generate reply",
			zap.String("user_id", working.UserID),
			zap.Error(err))
		r.sink.Record(observability.EventModelError, map[string]any{
			"user_id": working.UserID,
			"error":   err.Error(),
		})
		if !r.cfg.FallbackOnModelError {
			return nil, err
		}
		reply.Content = ReplyModelFallback
	default:
		if gen == nil {
			gen = &llm.Generation{}
		}
		r.sink.Record(observability.EventGeneration, map[string]any{
			"user_id":    working.UserID,
			"intent":     string(classification.Primary),
			"tokens":     gen.UsageTokens,
			"disclaimer": prompt.RequiresDisclaimer(classification.Primary),
		})
		reply.Content = r.screenOutput(working.UserID, gen.Content, profile, &reply, result)
	}

	store.AppendMessage(userMsg)
	reply.Timestamp = r.now()
	result.AssistantMessage = store.AppendMessage(reply)
	return r.finish(ctx, result)
}

// RemovedContent is what is stored in place of a user message that a block
// rule rejected.
func RemovedContent(verdictType string) string {
	return "[removed: " + verdictType + "]"
}

// redactVerdict drops the matched text of rules that fire on private data.
func redactVerdict(v models.SafetyVerdict) models.SafetyVerdict {
	if v.Type == safety.TypePersonalInfo {
		v.Entity = ""
	}
	return v
}

// screenOutput replaces blocked model text with the rule's redirect and
// otherwise appends the disclaimers the profile calls for.
func (r *Router) screenOutput(userID, content string, profile models.UserProfile, reply *models.Message, result *TurnResult) string {
	if verdict := r.guard.Check(content, profile); verdict.Detected {
		r.sink.Record(observability.EventOutputBlocked, map[string]any{
			"user_id": userID,
			"type":    verdict.Type,
			"entity":  verdict.Entity,
		})
		reply.Safety = &verdict
		result.Blocked = true
		return verdict.Message
	}
	if content == "" {
		return ReplyNotUnderstood
	}
	out, _ := r.guard.ApplySafetyChecks(content, profile)
	return out
}

// finish compresses the working session when it is over the threshold and
// persists it.
func (r *Router) finish(ctx context.Context, result *TurnResult) (*TurnResult, error) {
	session := result.Session
	if r.compressor.Compress(session) {
		r.sink.Record(observability.EventCompression, map[string]any{
			"conversation_id": session.ConversationID,
			"kept":            len(session.Messages),
			"topic":           r.compressor.Topic(session.Messages),
		})
	}
	if err := r.store.Save(ctx, session); err != nil {
		r.logger.Error("Failed to save session",
			zap.String("conversation_id", session.ConversationID),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}

// SyncDevices merges the user's device sessions into deviceID's session.
// An empty deviceID means the configured default device.
func (r *Router) SyncDevices(ctx context.Context, userID, deviceID string) (*devicesync.Result, error) {
	if deviceID == "" {
		deviceID = r.cfg.DeviceID
	}
	return r.sync.Sync(ctx, userID, deviceID)
}

// LoadOrCreateSession returns the device's latest active session, or a new
// unsaved one.
func (r *Router) LoadOrCreateSession(ctx context.Context, userID, deviceID string) (*models.ConversationSession, error) {
	if deviceID == "" {
		deviceID = r.cfg.DeviceID
	}
	session, err := r.store.LoadDeviceSession(ctx, userID, deviceID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}
	return conversation.NewSession(userID, deviceID, r.now()), nil
}

// ClearSession archives session and returns a fresh one for the same device.
func (r *Router) ClearSession(ctx context.Context, session *models.ConversationSession) (*models.ConversationSession, error) {
	if session == nil {
		return nil, ErrNilSession
	}
	if len(session.Messages) > 0 {
		archived := session.Clone()
		archived.Archived = true
		if err := r.store.Save(ctx, archived); err != nil {
			return nil, err
		}
	}
	device := session.OwnerDevice
	if device == "" {
		device = r.cfg.DeviceID
	}
	return conversation.NewSession(session.UserID, device, r.now()), nil
}

// LoadProfile returns the stored profile or a beginner default.
func (r *Router) LoadProfile(ctx context.Context, userID string) (models.UserProfile, error) {
	profile, err := r.store.LoadProfile(ctx, userID)
	if err != nil {
		return models.UserProfile{}, err
	}
	if profile == nil {
		return models.UserProfile{
			UserID:          userID,
			ExperienceLevel: models.ExperienceBeginner,
		}, nil
	}
	return *profile, nil
}

// SaveProfile stamps and stores profile.
func (r *Router) SaveProfile(ctx context.Context, profile models.UserProfile) error {
	profile.UpdatedAt = r.now()
	return r.store.SaveProfile(ctx, &profile)
}
