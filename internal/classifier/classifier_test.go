package classifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xaenox/finley/internal/models"
)

func TestIntentClassifier_Classify(t *testing.T) {
	c := NewIntentClassifier()

	tests := []struct {
		name     string
		text     string
		expected models.Intent
	}{
		{name: "empty", text: "", expected: models.IntentGeneral},
		{name: "whitespace only", text: "   \n\t", expected: models.IntentGeneral},
		{name: "education keyword", text: "Can you explain what a bond is?", expected: models.IntentEducation},
		{name: "compound interest question", text: "What is compound interest?", expected: models.IntentEducation},
		{name: "suggestion", text: "What should I invest in?", expected: models.IntentSuggestion},
		{name: "suggestion with teaching phrase", text: "What is an ETF and should I buy one?", expected: models.IntentEducation},
		{name: "suggestion with how to", text: "How to pick which stock to recommend to a friend", expected: models.IntentEducation},
		{name: "education and suggestion", text: "Help me understand what is a good investment", expected: models.IntentEducation},
		{name: "portfolio", text: "Is my portfolio too heavy in tech?", expected: models.IntentPortfolio},
		{name: "calculation", text: "How much will $100 grow to in 10 years?", expected: models.IntentCalculation},
		{name: "teaching phrase alone", text: "What is a dividend", expected: models.IntentEducation},
		{name: "no match", text: "hey there!", expected: models.IntentGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.text)
			assert.Equal(t, tt.expected, got.Primary, "Classify(%q)", tt.text)
		})
	}
}

func TestIntentClassifier_EmptyInputIsNeutral(t *testing.T) {
	var c IntentClassifier

	got := c.Classify("")
	assert.Equal(t, models.IntentGeneral, got.Primary)
	assert.False(t, got.RequiresSafety)
	assert.Zero(t, got.ComplexityScore)
	assert.Empty(t, got.Categories)
}

func TestIntentClassifier_RequiresSafety(t *testing.T) {
	c := NewIntentClassifier()

	assert.True(t, c.Classify("What should I invest in?").RequiresSafety)
	assert.True(t, c.Classify("Look at my portfolio").RequiresSafety)
	// overridden to education but the recommendation phrasing still gets checked
	assert.True(t, c.Classify("What is the best stock, should I buy it?").RequiresSafety)
	assert.False(t, c.Classify("Explain bonds").RequiresSafety)
}

func TestIntentClassifier_CategoriesKeepCheckOrder(t *testing.T) {
	c := NewIntentClassifier()

	got := c.Classify("Explain how much my portfolio should I rebalance")
	assert.Equal(t, []models.Intent{
		models.IntentEducation,
		models.IntentSuggestion,
		models.IntentPortfolio,
		models.IntentCalculation,
	}, got.Categories)
}

func TestComplexity(t *testing.T) {
	long := strings.Repeat("a", 200)

	tests := []struct {
		name     string
		text     string
		context  string
		expected int
	}{
		{name: "empty", text: "", expected: 0},
		{name: "short", text: "hi", expected: 0},
		{name: "medium", text: strings.Repeat("word ", 12), expected: 1},
		{name: "long", text: long, expected: 2},
		{name: "short with complex term", text: "what is leverage", expected: 2},
		{name: "long with complex term and context", text: long + " options", context: strings.Repeat("c", 501), expected: 5},
		{name: "context at threshold", text: "hi", context: strings.Repeat("c", 500), expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Complexity(tt.text, tt.context)
			if got != tt.expected {
				t.Errorf("Complexity(%q) = %d, want %d", tt.text, got, tt.expected)
			}
		})
	}
}

func TestExtractEntities(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected models.Entities
	}{
		{
			name:     "nothing to extract",
			text:     "hello",
			expected: models.Entities{},
		},
		{
			name: "amount and timeframe",
			text: "If I put $1,500 into an index fund for 5 years",
			expected: models.Entities{
				Amount:         "1,500",
				Timeframe:      "5 year",
				InvestmentType: "index fund",
			},
		},
		{
			name:     "amount in words",
			text:     "I have 200 dollars",
			expected: models.Entities{Amount: "200"},
		},
		{
			name:     "goal phrase",
			text:     "I am saving up for a car",
			expected: models.Entities{Goal: "car"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractEntities(tt.text))
		})
	}
}
