// Package safety implements the content policy for a teen audience: block
// rules, disclaimer injection, input validation and sanitizing. Everything in
// here is pure and never panics.
package safety

import "github.com/xaenox/finley/internal/models"

// Guard bundles the policy functions with the configured input limits.
type Guard struct {
	minInputLength int
	maxInputLength int
}

func NewGuard(minInputLength, maxInputLength int) *Guard {
	return &Guard{
		minInputLength: minInputLength,
		maxInputLength: maxInputLength,
	}
}

func (g *Guard) Check(text string, profile models.UserProfile) models.SafetyVerdict {
	return Check(text, profile)
}

func (g *Guard) ApplySafetyChecks(text string, profile models.UserProfile) (string, int) {
	return ApplySafetyChecks(text, profile)
}

func (g *Guard) ValidateInput(text string) error {
	return ValidateInput(text, g.minInputLength, g.maxInputLength)
}

func (g *Guard) Sanitize(text string) string {
	return Sanitize(text)
}
