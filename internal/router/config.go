package router

import (
	"errors"

	"github.com/xaenox/finley/internal/llm"
)

var ErrInvalidConfig = errors.New("router: invalid config")

// Canned replies in Finley's voice.
const (
	ReplyNotUnderstood = "Hmm, I'm not sure I understand that. Could you rephrase your question? I'm here to help! 🤔"
	ReplySafetyConcern = "I want to make sure I'm giving you the right kind of help. Could you tell me more about what you're looking for? 🛡️"
	ReplyModelFallback = "I'm sorry, I'm having trouble generating a response right now. Please try again! 😅"
)

type Config struct {
	// EscalationThreshold is the complexity score at which the escalated
	// model options are used.
	// Default: 3
	EscalationThreshold int `mapstructure:"escalation_threshold"`

	// FallbackOnModelError answers with ReplyModelFallback instead of
	// returning the model error.
	// Default: false
	FallbackOnModelError bool `mapstructure:"fallback_on_model_error"`

	// DeviceID tags messages written through this router when the caller
	// does not name a device.
	// Default: "cli"
	DeviceID string `mapstructure:"device_id"`

	// ContextTokenBudget caps the relevant context sent with each turn.
	// Zero disables trimming.
	ContextTokenBudget int `mapstructure:"-"`

	Light     llm.Options `mapstructure:"-"`
	Escalated llm.Options `mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		EscalationThreshold: 3,
		DeviceID:            "cli",
		ContextTokenBudget:  1500,
		Light:               llm.Options{MaxTokens: 500, Temperature: 0.7},
		Escalated:           llm.Options{MaxTokens: 1000, Temperature: 0.5},
	}
}

func (c Config) Validate() error {
	if c.EscalationThreshold < 0 || c.ContextTokenBudget < 0 || c.DeviceID == "" {
		return ErrInvalidConfig
	}
	return nil
}
