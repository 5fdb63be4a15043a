// Package conversation keeps the per-session message history bounded: a
// running store of messages and a compressor that ranks old messages for
// relevance and folds them into a summary.
package conversation

import (
	"unicode/utf8"

	"github.com/xaenox/finley/internal/models"
)

// EstimateTokens is a coarse approximation of ~4 characters per token,
// counted in runes so multi-byte text is not overestimated.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// EstimateMessages sums the token estimate of every message.
func EstimateMessages(messages []models.Message) int {
	total := 0
	for _, msg := range messages {
		total += msg.TokenEstimate
	}
	return total
}
