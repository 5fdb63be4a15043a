package router

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xaenox/finley/internal/conversation"
	"github.com/xaenox/finley/internal/llm"
	"github.com/xaenox/finley/internal/models"
	"github.com/xaenox/finley/internal/safety"
	"github.com/xaenox/finley/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type mockModel struct {
	reply   string
	err     error
	prompts []string
	options []llm.Options
}

func (m *mockModel) Generate(ctx context.Context, prompt string, opts llm.Options) (*llm.Generation, error) {
	m.prompts = append(m.prompts, prompt)
	m.options = append(m.options, opts)
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Generation{Content: m.reply, UsageTokens: 42}, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) Record(eventType string, _ map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, eventType)
}

type env struct {
	router *Router
	model  *mockModel
	store  *storage.MemoryStorage
	sink   *recordingSink
	now    time.Time
}

func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()
	e := &env{
		model: &mockModel{reply: "Great question! Let's learn together."},
		store: storage.NewMemoryStorage(),
		sink:  &recordingSink{},
		now:   base,
	}
	r, err := New(Dependencies{
		Store: e.store,
		Model: e.model,
		Sink:  e.sink,
		Now: func() time.Time {
			e.now = e.now.Add(time.Second)
			return e.now
		},
	}, cfg)
	require.NoError(t, err)
	e.router = r
	return e
}

func teen() models.UserProfile {
	return models.UserProfile{
		UserID:          "u1",
		Age:             15,
		ExperienceLevel: models.ExperienceBeginner,
		RiskTolerance:   "moderate",
	}
}

func TestRouter_TeenAskingWhatToBuy(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, DefaultConfig())
	e.model.reply = "A lot of teens like to buy AAPL because they know the brand."
	session := conversation.NewSession("u1", "phone", base)

	classification := e.router.Classify("What should I invest in?")
	assert.Equal(t, models.IntentSuggestion, classification.Primary)

	result, err := e.router.ProcessTurn(ctx, session, "What should I invest in?", teen())
	require.NoError(t, err)

	verdict := e.router.CheckSafety(e.model.reply, teen())
	assert.True(t, verdict.Detected)
	assert.Equal(t, safety.TypeSpecificStock, verdict.Type)

	assert.True(t, result.Blocked)
	assert.Equal(t, safety.MessageSpecificStock, result.AssistantMessage.Content)
	require.NotNil(t, result.AssistantMessage.Safety)
	assert.Equal(t, "AAPL", result.AssistantMessage.Safety.Entity)

	require.Len(t, result.Session.Messages, 2)
	user := result.Session.Messages[0]
	assert.Equal(t, "What should I invest in?", user.Content)
	require.NotNil(t, user.Classification)
	assert.Equal(t, models.IntentSuggestion, user.Classification.Primary)

	require.Len(t, e.model.prompts, 1)
	assert.Contains(t, e.model.prompts[0], "## Task: suggestion")
	assert.Contains(t, e.model.prompts[0], "## Required disclaimer")
	assert.Contains(t, e.sink.events, "output_blocked")
}

func TestRouter_EducationTurnAddsDisclaimers(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, DefaultConfig())
	e.model.reply = "Compound interest means you earn interest on your interest."
	session := conversation.NewSession("u1", "phone", base)
	profile := models.UserProfile{UserID: "u1", Age: 14}

	result, err := e.router.ProcessTurn(ctx, session, "What is compound interest?", profile)
	require.NoError(t, err)

	want := e.model.reply + "\n\n" + safety.DisclaimerAge13To15 + "\n\n" + safety.DisclaimerGeneral
	assert.Equal(t, want, result.AssistantMessage.Content)
	assert.False(t, result.Blocked)
	assert.False(t, result.Escalated)

	assert.Empty(t, session.Messages, "caller's session must not change")
	assert.Len(t, result.Session.Messages, 2)
	assert.Equal(t, 2, result.Session.Metadata.MessageCount)
	assert.True(t, result.Session.Messages[0].Timestamp.Before(result.Session.Messages[1].Timestamp))

	stored, err := e.store.Load(ctx, "u1", session.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Len(t, stored.Messages, 2)

	require.Len(t, e.model.prompts, 1)
	assert.True(t, strings.HasSuffix(e.model.prompts[0], "## Student's message\nWhat is compound interest?"))
	assert.Equal(t, DefaultConfig().Light, e.model.options[0])
}

func TestRouter_BlockedInputSkipsModel(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, DefaultConfig())
	session := conversation.NewSession("u1", "phone", base)

	result, err := e.router.ProcessTurn(ctx, session, "Should I buy Tesla stock?", teen())
	require.NoError(t, err)

	assert.Empty(t, e.model.prompts)
	assert.True(t, result.Blocked)
	assert.Equal(t, safety.MessageSpecificStock, result.AssistantMessage.Content)
	require.Len(t, result.Session.Messages, 2)
	require.NotNil(t, result.Session.Messages[0].Safety)
	assert.Equal(t, safety.TypeSpecificStock, result.Session.Messages[0].Safety.Type)
	assert.Contains(t, e.sink.events, "input_blocked")
}

func TestRouter_BlockedInputIsNotStored(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, DefaultConfig())
	session := conversation.NewSession("u1", "phone", base)
	input := "hi, my ssn is 123-45-6789 can you help"

	result, err := e.router.ProcessTurn(ctx, session, input, teen())
	require.NoError(t, err)
	assert.True(t, result.Blocked)
	assert.Equal(t, safety.MessagePersonalInfo, result.AssistantMessage.Content)

	stored, err := e.store.Load(ctx, "u1", session.ConversationID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2)

	user := stored.Messages[0]
	assert.Equal(t, models.RoleUser, user.Role)
	assert.Equal(t, RemovedContent(safety.TypePersonalInfo), user.Content)
	require.NotNil(t, user.Safety)
	assert.Equal(t, safety.TypePersonalInfo, user.Safety.Type)
	assert.Empty(t, user.Safety.Entity)
	require.NotNil(t, user.Classification)
	assert.Equal(t, models.IntentGeneral, user.Classification.Primary)

	for _, msg := range stored.Messages {
		assert.NotContains(t, msg.Content, "123-45-6789")
		if msg.Safety != nil {
			assert.NotContains(t, msg.Safety.Entity, "123-45-6789")
		}
	}
	assert.Empty(t, e.model.prompts)
}

func TestRouter_StoresProfileSnapshot(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, DefaultConfig())
	session := conversation.NewSession("u1", "laptop", base)
	profile := teen()
	profile.UserID = ""
	profile.UpdatedAt = base

	_, err := e.router.ProcessTurn(ctx, session, "What is compound interest?", profile)
	require.NoError(t, err)

	stored, err := e.store.LoadDeviceSession(ctx, "u1", "laptop")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.Profile)
	assert.Equal(t, "u1", stored.Profile.UserID)
	assert.Equal(t, 15, stored.Profile.Age)
	assert.Nil(t, session.Profile)
}

func TestRouter_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		stored string
	}{
		{name: "empty", input: "", stored: ""},
		{name: "script", input: "<script>alert(1)</script>", stored: "&lt;script&gt;alert(1)&lt;/script&gt;"},
		{name: "whitespace flood", input: "hi" + strings.Repeat(" ", 12) + "there", stored: "hi" + strings.Repeat(" ", 12) + "there"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, DefaultConfig())
			session := conversation.NewSession("u1", "phone", base)

			result, err := e.router.ProcessTurn(context.Background(), session, tt.input, teen())
			require.NoError(t, err)

			assert.Empty(t, e.model.prompts)
			assert.Equal(t, ReplyNotUnderstood, result.AssistantMessage.Content)
			require.Len(t, result.Session.Messages, 2)
			assert.Equal(t, tt.stored, result.Session.Messages[0].Content)
		})
	}
}

func TestRouter_EscalatesComplexQuestions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Escalated.Model = "large"
	e := newEnv(t, cfg)
	session := conversation.NewSession("u1", "phone", base)

	result, err := e.router.ProcessTurn(context.Background(), session,
		"Can you explain how leverage and margin work for people who trade every day?", teen())
	require.NoError(t, err)

	assert.True(t, result.Escalated)
	require.Len(t, e.model.options, 1)
	assert.Equal(t, "large", e.model.options[0].Model)
	assert.Contains(t, e.sink.events, "escalation")
}

func TestRouter_ModelErrorIsReturnedUnchanged(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, DefaultConfig())
	e.model.err = fmt.Errorf("%w: timeout", llm.ErrGeneration)
	session := conversation.NewSession("u1", "phone", base)

	result, err := e.router.ProcessTurn(ctx, session, "What is a bond?", teen())
	assert.Nil(t, result)
	assert.Same(t, e.model.err, err)

	stored, loadErr := e.store.Load(ctx, "u1", session.ConversationID)
	require.NoError(t, loadErr)
	assert.Nil(t, stored)
}

func TestRouter_ModelErrorFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FallbackOnModelError = true
	e := newEnv(t, cfg)
	e.model.err = llm.ErrGeneration
	session := conversation.NewSession("u1", "phone", base)

	result, err := e.router.ProcessTurn(context.Background(), session, "What is a bond?", teen())
	require.NoError(t, err)
	assert.Equal(t, ReplyModelFallback, result.AssistantMessage.Content)
	assert.Len(t, result.Session.Messages, 2)
}

type failingSave struct {
	*storage.MemoryStorage
}

func (failingSave) Save(context.Context, *models.ConversationSession) error {
	return storage.ErrClosed
}

func TestRouter_PersistenceErrorIsReturned(t *testing.T) {
	r, err := New(Dependencies{
		Store: failingSave{storage.NewMemoryStorage()},
		Model: &mockModel{reply: "ok"},
	}, DefaultConfig())
	require.NoError(t, err)

	result, err := r.ProcessTurn(context.Background(), conversation.NewSession("u1", "phone", base), "What is a bond?", teen())
	assert.Nil(t, result)
	assert.ErrorIs(t, err, storage.ErrClosed)
}

func TestRouter_CompressesLongSessions(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	session := conversation.NewSession("u1", "phone", base)
	store := conversation.NewStore(session, nil, nil)
	for i := 0; i < 20; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		store.Append(role, fmt.Sprintf("message %d about savings", i), base.Add(time.Duration(i)*time.Millisecond), "phone")
	}

	result, err := e.router.ProcessTurn(context.Background(), session, "What is a bond?", teen())
	require.NoError(t, err)

	keep := conversation.DefaultConfig().KeepRecent
	require.Len(t, result.Session.Messages, keep+1)
	assert.Equal(t, models.RoleSystem, result.Session.Messages[0].Role)
	assert.True(t, result.Session.Metadata.Compressed)
	assert.Equal(t, 22, result.Session.Metadata.MessageCount)
	assert.Contains(t, e.sink.events, "compression")
	assert.Len(t, session.Messages, 20)
}

func TestRouter_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, DefaultConfig())

	session, err := e.router.LoadOrCreateSession(ctx, "u1", "phone")
	require.NoError(t, err)
	assert.Empty(t, session.Messages)
	assert.Equal(t, "phone", session.OwnerDevice)

	result, err := e.router.ProcessTurn(ctx, session, "What is a bond?", teen())
	require.NoError(t, err)

	again, err := e.router.LoadOrCreateSession(ctx, "u1", "phone")
	require.NoError(t, err)
	assert.Equal(t, session.ConversationID, again.ConversationID)
	assert.Len(t, again.Messages, 2)

	fresh, err := e.router.ClearSession(ctx, result.Session)
	require.NoError(t, err)
	assert.NotEqual(t, session.ConversationID, fresh.ConversationID)
	assert.Empty(t, fresh.Messages)

	archived, err := e.store.Load(ctx, "u1", session.ConversationID)
	require.NoError(t, err)
	assert.True(t, archived.Archived)

	next, err := e.router.LoadOrCreateSession(ctx, "u1", "phone")
	require.NoError(t, err)
	assert.NotEqual(t, session.ConversationID, next.ConversationID)
	assert.Empty(t, next.Messages)
}

func TestRouter_DefaultDevice(t *testing.T) {
	e := newEnv(t, DefaultConfig())
	session, err := e.router.LoadOrCreateSession(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "cli", session.OwnerDevice)
}

func TestRouter_Profiles(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, DefaultConfig())

	profile, err := e.router.LoadProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", profile.UserID)
	assert.Equal(t, models.ExperienceBeginner, profile.ExperienceLevel)

	profile.Age = 16
	require.NoError(t, e.router.SaveProfile(ctx, profile))

	loaded, err := e.router.LoadProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 16, loaded.Age)
	assert.False(t, loaded.UpdatedAt.IsZero())
}

func TestRouter_SyncDevices(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, DefaultConfig())

	phone, err := e.router.LoadOrCreateSession(ctx, "u1", "phone")
	require.NoError(t, err)
	_, err = e.router.ProcessTurn(ctx, phone, "What is a bond?", teen())
	require.NoError(t, err)

	laptop, err := e.router.LoadOrCreateSession(ctx, "u1", "laptop")
	require.NoError(t, err)
	_, err = e.router.ProcessTurn(ctx, laptop, "What is an ETF?", teen())
	require.NoError(t, err)

	result, err := e.router.SyncDevices(ctx, "u1", "phone")
	require.NoError(t, err)
	require.False(t, result.Skipped)
	assert.Equal(t, 2, result.DeviceCount)
	assert.Len(t, result.Session.Messages, 4)
	assert.Equal(t, phone.ConversationID, result.Session.ConversationID)

	second, err := e.router.SyncDevices(ctx, "u1", "phone")
	require.NoError(t, err)
	assert.True(t, second.Skipped)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Dependencies{Model: &mockModel{}}, DefaultConfig())
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.EscalationThreshold = -1
	_, err = New(Dependencies{Store: storage.NewMemoryStorage(), Model: &mockModel{}}, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
