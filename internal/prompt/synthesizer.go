// Package prompt composes the instruction text handed to the language model.
// Output depends only on the inputs, so identical inputs give identical bytes.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xaenox/finley/internal/models"
)

const defaultRiskTolerance = "not specified"

// Synthesizer builds system prompts from intent, profile and summary.
type Synthesizer struct{}

func NewSynthesizer() *Synthesizer {
	return &Synthesizer{}
}

// Build concatenates, in fixed order: persona, intent block, experience
// tone, profile lines, age guidance, conversation summary and, when the
// intent needs it, the disclaimer block.
func (s *Synthesizer) Build(intent models.Intent, profile models.UserProfile, summary string) string {
	block, ok := intentBlocks[intent]
	if !ok {
		intent = models.IntentGeneral
		block = intentBlocks[models.IntentGeneral]
	}
	level := experienceLevel(profile.ExperienceLevel)

	var sb strings.Builder
	sb.WriteString(personaPreamble)

	sb.WriteString("\n\n## Task: ")
	sb.WriteString(string(intent))
	sb.WriteString("\n")
	sb.WriteString(block.instruction)
	sb.WriteString("\nResponse length: ")
	sb.WriteString(block.lengthHint)
	sb.WriteString(".")
	if block.requireExamples {
		sb.WriteString("\nInclude at least one concrete example.")
	}
	if block.requireDisclaimer {
		sb.WriteString("\nA disclaimer is mandatory for this answer.")
	}

	sb.WriteString("\n\n## Tone\n")
	sb.WriteString(experienceTone[level])
	for _, adj := range profile.ToneAdjustments {
		if adj = strings.TrimSpace(adj); adj != "" {
			sb.WriteString("\n")
			sb.WriteString(adj)
		}
	}

	sb.WriteString("\n\n## Student profile")
	if profile.Age > 0 {
		sb.WriteString(fmt.Sprintf("\n- Age: %d", profile.Age))
	} else {
		sb.WriteString("\n- Age: unknown")
	}
	sb.WriteString("\n- Experience: ")
	sb.WriteString(string(level))
	risk := strings.TrimSpace(profile.RiskTolerance)
	if risk == "" {
		risk = defaultRiskTolerance
	}
	sb.WriteString("\n- Risk tolerance: ")
	sb.WriteString(risk)
	if profile.Budget > 0 {
		sb.WriteString(fmt.Sprintf("\n- Budget: $%.2f", profile.Budget))
	}
	if profile.PortfolioValue > 0 {
		sb.WriteString(fmt.Sprintf("\n- Portfolio value: $%.2f", profile.PortfolioValue))
	}
	if goals := normalizeSet(profile.Goals); len(goals) > 0 {
		sb.WriteString("\n- Goals: ")
		sb.WriteString(strings.Join(goals, ", "))
	}
	if interests := normalizeSet(profile.Interests); len(interests) > 0 {
		sb.WriteString("\n- Interests: ")
		sb.WriteString(strings.Join(interests, ", "))
	}

	band := ageBandFor(profile.Age)
	sb.WriteString("\n\n## Age guidance (")
	sb.WriteString(band.label)
	sb.WriteString(")\n")
	sb.WriteString(band.guidance)

	if summary = strings.TrimSpace(summary); summary != "" {
		sb.WriteString("\n\n## Conversation so far\n")
		sb.WriteString(summary)
	}

	if block.requireDisclaimer {
		sb.WriteString("\n\n")
		sb.WriteString(disclaimerBlock)
	}

	return sb.String()
}

// Compose renders the single prompt string sent to the model: the system
// instructions, the context transcript and the student's new message.
func (s *Synthesizer) Compose(system string, context []models.Message, userText string) string {
	var sb strings.Builder
	sb.WriteString(system)

	var lines []string
	for _, msg := range context {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker(msg.Role), content))
	}
	if len(lines) > 0 {
		sb.WriteString("\n\n## Recent messages\n")
		sb.WriteString(strings.Join(lines, "\n"))
	}

	sb.WriteString("\n\n## Student's message\n")
	sb.WriteString(strings.TrimSpace(userText))
	return sb.String()
}

// RequiresDisclaimer reports whether the intent's block makes a disclaimer mandatory.
func RequiresDisclaimer(intent models.Intent) bool {
	return intentBlocks[intent].requireDisclaimer
}

func speaker(role models.Role) string {
	switch role {
	case models.RoleUser:
		return "Student"
	case models.RoleAssistant:
		return "Finley"
	default:
		return "Note"
	}
}

func experienceLevel(level models.ExperienceLevel) models.ExperienceLevel {
	if _, ok := experienceTone[level]; ok {
		return level
	}
	return models.ExperienceBeginner
}

func ageBandFor(age int) ageBand {
	for _, band := range ageBands[:len(ageBands)-1] {
		if age <= band.maxAge {
			return band
		}
	}
	return ageBands[len(ageBands)-1]
}

// normalizeSet trims, drops blanks and duplicates, and sorts
func normalizeSet(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}
