package safety

import (
	"errors"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	ErrInputTooShort   = errors.New("safety: input too short")
	ErrInputTooLong    = errors.New("safety: input too long")
	ErrExcessiveSpaces = errors.New("safety: input contains a long run of whitespace")
	ErrInjection       = errors.New("safety: input contains markup or script injection")
)

const (
	DefaultMinInputLength = 1
	DefaultMaxInputLength = 1000
)

var (
	whitespaceRun     = regexp.MustCompile(`\s{10,}`)
	injectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<\s*/?\s*script\b`),
		regexp.MustCompile(`(?i)\b(?:javascript|vbscript)\s*:`),
		regexp.MustCompile(`(?i)<[^>]*\bon[a-z]+\s*=`),
		regexp.MustCompile(`(?i)\bexpression\s*\(`),
	}
)

// ValidateInput enforces the length limits and rejects whitespace floods and
// known injection patterns. Limits <= 0 fall back to the defaults.
func ValidateInput(text string, minLen, maxLen int) error {
	if minLen <= 0 {
		minLen = DefaultMinInputLength
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxInputLength
	}

	n := utf8.RuneCountInString(strings.TrimSpace(text))
	if n < minLen {
		return ErrInputTooShort
	}
	if n > maxLen {
		return ErrInputTooLong
	}
	if whitespaceRun.MatchString(text) {
		return ErrExcessiveSpaces
	}
	for _, re := range injectionPatterns {
		if re.MatchString(text) {
			return ErrInjection
		}
	}
	return nil
}

// Sanitize escapes the characters that matter for XSS: & < > " '
func Sanitize(text string) string {
	return html.EscapeString(text)
}
