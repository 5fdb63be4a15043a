package conversation

import "errors"

var ErrInvalidConfig = errors.New("conversation: invalid config")

// Config holds limits for history retention and compression.
type Config struct {
	// CompressionThreshold is the raw message count above which older
	// messages are folded into a summary.
	// Default: 20
	CompressionThreshold int `mapstructure:"compression_threshold"`

	// KeepRecent is how many of the newest messages survive compression.
	// Default: 10
	KeepRecent int `mapstructure:"keep_recent"`

	// RetentionCap is the hard limit on raw messages in a session.
	// Default: 50
	RetentionCap int `mapstructure:"retention_cap"`

	// RecentWindow is how many of the newest messages are always part of
	// the relevant context.
	// Default: 6
	RecentWindow int `mapstructure:"recent_window"`

	// RelevantLimit is how many older messages are pulled in by relevance.
	// Default: 3
	RelevantLimit int `mapstructure:"relevant_limit"`

	// ContextTokenBudget caps the estimated tokens of the relevant context
	// sent with each turn. Zero disables trimming.
	// Default: 1500
	ContextTokenBudget int `mapstructure:"context_token_budget"`

	// SummaryMaxChars bounds the generated summary.
	// Default: 600
	SummaryMaxChars int `mapstructure:"summary_max_chars"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		CompressionThreshold: 20,
		KeepRecent:           10,
		RetentionCap:         50,
		RecentWindow:         6,
		RelevantLimit:        3,
		ContextTokenBudget:   1500,
		SummaryMaxChars:      600,
	}
}

// Validate checks the limits are consistent with each other.
func (c Config) Validate() error {
	switch {
	case c.KeepRecent <= 0 || c.RecentWindow <= 0 || c.RelevantLimit < 0 || c.ContextTokenBudget < 0 || c.SummaryMaxChars <= 0:
		return ErrInvalidConfig
	case c.KeepRecent >= c.CompressionThreshold:
		return ErrInvalidConfig
	case c.CompressionThreshold > c.RetentionCap:
		return ErrInvalidConfig
	}
	return nil
}
