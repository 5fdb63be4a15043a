package safety

import (
	"strings"

	"github.com/xaenox/finley/internal/models"
)

const (
	minValidAge = 13
	maxValidAge = 120
)

// Age-band notices
const (
	DisclaimerAge13To15 = "👋 Since you're 13-15, please talk with a parent or guardian before making any money decisions. Any real investing has to happen through a custodial account they manage with you."
	DisclaimerAge16To17 = "🎓 At 16-17 you can start practicing with a custodial account, but a parent or guardian still needs to be part of every real investment decision."
	DisclaimerAge18Plus = "📋 As an adult you can open your own accounts. Take time to research, and consider talking to a licensed financial professional before investing real money."
)

// Risk-tier warnings
const (
	WarningHighRisk   = "⚠️ High risk: this kind of investment can lose a lot of value quickly. Only ever use money you can afford to lose."
	WarningMediumRisk = "⚖️ Medium risk: prices can go up and down, so think long term and spread your money across different investments."
	WarningLowRisk    = "🛡️ Lower risk: these options are steadier, but returns are usually smaller and may not keep up with inflation."
)

// DisclaimerGeneral is appended unless the text already says the same thing
const DisclaimerGeneral = "💡 Remember: this is educational content only, not financial advice. Always do your own research and talk to trusted adults about big financial decisions."

type riskTier struct {
	warning  string
	keywords []string
}

// Checked high to low; the first tier with a hit wins
var riskTiers = []riskTier{
	{WarningHighRisk, []string{
		"crypto", "bitcoin", "ethereum", "dogecoin", "nft", "option", "futures",
		"leverage", "margin", "penny stock", "day trading", "meme stock", "forex",
	}},
	{WarningMediumRisk, []string{
		"stock", "shares", "equity", "equities", "growth", "emerging market",
		"small cap", "reit", "real estate",
	}},
	{WarningLowRisk, []string{
		"savings account", "high-yield savings", "bond", "treasury", "certificate of deposit",
		"index fund", "money market", " cd ", " cds ",
	}},
}

var generalEquivalents = []string{
	"not financial advice",
	"not investment advice",
	"for educational purposes only",
}

// AgeDisclaimer picks the age-band notice. A missing or implausible age gets
// the most conservative band.
func AgeDisclaimer(age int) string {
	switch {
	case age < minValidAge || age > maxValidAge:
		return DisclaimerAge13To15
	case age <= 15:
		return DisclaimerAge13To15
	case age <= 17:
		return DisclaimerAge16To17
	default:
		return DisclaimerAge18Plus
	}
}

// RiskWarning scans content for risk vocabulary and falls back to the
// declared risk tolerance. It returns "" when neither gives an answer.
func RiskWarning(content, riskTolerance string) string {
	lower := " " + strings.ToLower(content) + " "
	for _, tier := range riskTiers {
		if containsAny(lower, tier.keywords) {
			return tier.warning
		}
	}

	switch strings.ToLower(strings.TrimSpace(riskTolerance)) {
	case "high", "aggressive":
		return WarningHighRisk
	case "medium", "moderate", "balanced":
		return WarningMediumRisk
	case "low", "conservative":
		return WarningLowRisk
	}
	return ""
}

// ApplySafetyChecks appends the age notice, a risk warning and the general
// notice to text that already passed Check. It returns the annotated text and
// how many disclaimers were added.
func ApplySafetyChecks(text string, profile models.UserProfile) (string, int) {
	notices := []string{AgeDisclaimer(profile.Age)}

	if warning := RiskWarning(text, profile.RiskTolerance); warning != "" {
		notices = append(notices, warning)
	}

	lower := strings.ToLower(text)
	if !containsAny(lower, generalEquivalents) {
		notices = append(notices, DisclaimerGeneral)
	}

	out := strings.TrimRight(text, " \n")
	for _, n := range notices {
		if out != "" {
			out += "\n\n"
		}
		out += n
	}
	return out, len(notices)
}

func containsAny(content string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(content, keyword) {
			return true
		}
	}
	return false
}
