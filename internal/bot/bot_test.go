package bot

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/finley/internal/models"
)

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"3.5% return!", `3\.5% return\!`},
		{"#saving_goal", `\#saving\_goal`},
		{`a\b`, `a\\b`},
		{"(risk) [high]", `\(risk\) \[high\]`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeMarkdown(tt.in))
		})
	}
}

func TestFormatHistory(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleUser, Content: "old"},
		{Role: models.RoleUser, Content: "What is a stock?"},
		{Role: models.RoleAssistant, Content: "A share of a company."},
	}

	got := formatHistory(messages, 2)
	want := "*Your recent messages:*\n\n" +
		"*You*\nWhat is a stock?\n\n" +
		"*Finley*\nA share of a company\\."
	assert.Equal(t, want, got)
}

func TestFormatProfile(t *testing.T) {
	got := formatProfile(models.UserProfile{
		Age:             15,
		ExperienceLevel: models.ExperienceBeginner,
		Budget:          50,
		Goals:           []string{"college", "car"},
	})
	want := "*Your profile:*\n" +
		"Age: 15\n" +
		"Experience: beginner\n" +
		"Risk tolerance: not set\n" +
		"Budget: $50\\.00\n" +
		"Goals: college, car"
	assert.Equal(t, want, got)
}

func TestApplyProfileArgs(t *testing.T) {
	base := models.UserProfile{UserID: "42", ExperienceLevel: models.ExperienceBeginner, Goals: []string{"bike"}}

	got, err := applyProfileArgs(base, "age=16 experience=Intermediate risk=LOW budget=$120.5 portfolio=300 goals=college,,car interests=tech")
	require.NoError(t, err)
	assert.Equal(t, "42", got.UserID)
	assert.Equal(t, 16, got.Age)
	assert.Equal(t, models.ExperienceIntermediate, got.ExperienceLevel)
	assert.Equal(t, "low", got.RiskTolerance)
	assert.Equal(t, 120.5, got.Budget)
	assert.Equal(t, 300.0, got.PortfolioValue)
	assert.Equal(t, []string{"college", "car"}, got.Goals)
	assert.Equal(t, []string{"tech"}, got.Interests)

	assert.Equal(t, []string{"bike"}, base.Goals, "input profile must not change")
}

func TestApplyProfileArgs_Errors(t *testing.T) {
	tests := []struct {
		name string
		args string
	}{
		{"missing value", "age="},
		{"no separator", "age"},
		{"bad age", "age=young"},
		{"age out of range", "age=0"},
		{"bad experience", "experience=guru"},
		{"negative budget", "budget=-5"},
		{"unknown field", "shoe_size=9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := models.UserProfile{Age: 14}
			got, err := applyProfileArgs(base, tt.args)
			assert.Error(t, err)
			assert.Equal(t, 14, got.Age)
		})
	}
}

func TestUserLocks_SerializesSameUser(t *testing.T) {
	locks := newUserLocks()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(7)
			defer unlock()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestUserLocks_IndependentUsers(t *testing.T) {
	locks := newUserLocks()

	unlockA := locks.lock(1)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.lock(2)
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for another user blocked")
	}
}
