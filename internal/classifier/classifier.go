package classifier

import (
	"regexp"
	"strings"

	"github.com/xaenox/finley/internal/models"
)

type Classifier interface {
	Classify(text string) models.ClassificationResult
	ClassifyWithContext(text, context string) models.ClassificationResult
}

type category struct {
	intent   models.Intent
	keywords []string
}

// Checked in order, first match is the primary intent
var categories = []category{
	{models.IntentEducation, []string{
		"explain", "learn", "teach me", "understand", "definition", "meaning of",
		"what does", "what are", "how does", "how do", "difference between", "compound interest",
	}},
	{models.IntentSuggestion, []string{
		"should i", "recommend", "suggest", "what should", "which stock", "best stock",
		"best investment", "is it good", "worth buying", "invest in", "good investment",
	}},
	{models.IntentPortfolio, []string{
		"portfolio", "my holdings", "my stocks", "my investments", "diversif",
		"allocation", "rebalanc", "my account",
	}},
	{models.IntentCalculation, []string{
		"calculate", "how much", "compound", "return on", "percent", "%", "interest rate",
		"roi", "=", "grow to", "worth in",
	}},
}

var teachingPhrases = []string{"how to", "what is"}

var complexTerms = []string{
	"derivative", "option", "futures", "leverage", "margin", "short selling",
	"hedge", "volatility", "valuation", "p/e", "dividend yield", "bond yield",
	"expense ratio", "asset allocation", "rebalancing", "capital gains",
}

var investmentTypes = []string{
	"index fund", "mutual fund", "savings account", "stocks", "stock", "bonds", "bond",
	"etfs", "etf", "crypto", "bitcoin", "reit", "cd",
}

const (
	shortLength       = 50
	mediumLength      = 150
	longContextLength = 500
)

var (
	amountPattern    = regexp.MustCompile(`\$\s?(\d[\d,]*(?:\.\d+)?)|\b(\d[\d,]*(?:\.\d+)?)\s?(?:dollars|bucks|usd)\b`)
	timeframePattern = regexp.MustCompile(`\b(\d+)\s*(day|week|month|year)s?\b`)
	goalPattern      = regexp.MustCompile(`\b(?:save|saving|saving up) (?:up )?for (?:a |an |my )?([a-z ]{3,40})|\bgoal is to ([a-z ]{3,40})`)
	wordPattern      = regexp.MustCompile(`[a-z0-9]+`)
)

// IntentClassifier maps an utterance to an intent with plain keyword matching.
// The zero value is ready to use.
type IntentClassifier struct{}

func NewIntentClassifier() *IntentClassifier {
	return &IntentClassifier{}
}

func (c *IntentClassifier) Classify(text string) models.ClassificationResult {
	return c.ClassifyWithContext(text, "")
}

// ClassifyWithContext classifies text; context only feeds the complexity score.
func (c *IntentClassifier) ClassifyWithContext(text, context string) models.ClassificationResult {
	content := strings.ToLower(strings.TrimSpace(text))
	if content == "" {
		return models.ClassificationResult{Primary: models.IntentGeneral}
	}

	var matched []models.Intent
	for _, cat := range categories {
		if containsAny(content, cat.keywords) {
			matched = append(matched, cat.intent)
		}
	}

	primary := models.IntentGeneral
	if len(matched) > 0 {
		primary = matched[0]
	}

	// Teaching intent takes precedence over recommendation intent
	teaching := containsAny(content, teachingPhrases)
	if teaching && (primary == models.IntentSuggestion || primary == models.IntentGeneral) {
		primary = models.IntentEducation
	}

	suggested := false
	for _, intent := range matched {
		if intent == models.IntentSuggestion {
			suggested = true
		}
	}

	return models.ClassificationResult{
		Primary:         primary,
		Categories:      matched,
		RequiresSafety:  suggested || primary == models.IntentSuggestion || primary == models.IntentPortfolio,
		ComplexityScore: Complexity(content, context),
		Entities:        ExtractEntities(content),
	}
}

// Complexity scores how demanding an utterance is: a length bucket, a bonus
// for specialist vocabulary and a bonus for long surrounding context.
func Complexity(text, context string) int {
	content := strings.ToLower(text)

	score := 0
	switch n := len(strings.TrimSpace(content)); {
	case n == 0:
		return 0
	case n < shortLength:
		score = 0
	case n < mediumLength:
		score = 1
	default:
		score = 2
	}

	if containsAny(content, complexTerms) {
		score += 2
	}
	if len(context) > longContextLength {
		score++
	}
	return score
}

// ExtractEntities pulls out amount, timeframe, investment type and goal when present.
func ExtractEntities(text string) models.Entities {
	content := strings.ToLower(text)
	var e models.Entities

	if m := amountPattern.FindStringSubmatch(content); m != nil {
		if m[1] != "" {
			e.Amount = m[1]
		} else {
			e.Amount = m[2]
		}
	}
	if m := timeframePattern.FindStringSubmatch(content); m != nil {
		e.Timeframe = m[1] + " " + m[2]
	}

	words := " " + strings.Join(wordPattern.FindAllString(content, -1), " ") + " "
	for _, kind := range investmentTypes {
		if strings.Contains(words, " "+kind+" ") {
			e.InvestmentType = kind
			break
		}
	}

	if m := goalPattern.FindStringSubmatch(content); m != nil {
		goal := m[1]
		if goal == "" {
			goal = m[2]
		}
		e.Goal = strings.TrimSpace(goal)
	}
	return e
}

func containsAny(content string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(content, keyword) {
			return true
		}
	}
	return false
}
