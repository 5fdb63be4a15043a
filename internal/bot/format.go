package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xaenox/finley/internal/models"
)

// escapeMarkdown escapes special characters for MarkdownV2
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

func roleLabel(role models.Role) string {
	switch role {
	case models.RoleUser:
		return "You"
	case models.RoleAssistant:
		return "Finley"
	default:
		return "Note"
	}
}

// formatHistory renders the newest limit messages, oldest first.
func formatHistory(messages []models.Message, limit int) string {
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	var sb strings.Builder
	sb.WriteString("*Your recent messages:*\n\n")
	for _, msg := range messages {
		fmt.Fprintf(&sb, "*%s*\n", roleLabel(msg.Role))
		sb.WriteString(escapeMarkdown(msg.Content))
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatProfile(p models.UserProfile) string {
	age := "not set"
	if p.Age > 0 {
		age = strconv.Itoa(p.Age)
	}
	risk := p.RiskTolerance
	if risk == "" {
		risk = "not set"
	}
	experience := string(p.ExperienceLevel)
	if experience == "" {
		experience = string(models.ExperienceBeginner)
	}

	lines := []string{
		"*Your profile:*",
		"Age: " + escapeMarkdown(age),
		"Experience: " + escapeMarkdown(experience),
		"Risk tolerance: " + escapeMarkdown(risk),
	}
	if p.Budget > 0 {
		lines = append(lines, "Budget: "+escapeMarkdown(fmt.Sprintf("$%.2f", p.Budget)))
	}
	if p.PortfolioValue > 0 {
		lines = append(lines, "Portfolio: "+escapeMarkdown(fmt.Sprintf("$%.2f", p.PortfolioValue)))
	}
	if len(p.Goals) > 0 {
		lines = append(lines, "Goals: "+escapeMarkdown(strings.Join(p.Goals, ", ")))
	}
	if len(p.Interests) > 0 {
		lines = append(lines, "Interests: "+escapeMarkdown(strings.Join(p.Interests, ", ")))
	}
	return strings.Join(lines, "\n")
}

// applyProfileArgs updates p from space separated key=value pairs, e.g.
// "age=15 experience=beginner goals=college,car".
func applyProfileArgs(p models.UserProfile, args string) (models.UserProfile, error) {
	out := p.Clone()
	for _, field := range strings.Fields(args) {
		key, value, ok := strings.Cut(field, "=")
		if !ok || value == "" {
			return p, fmt.Errorf("expected key=value, got %q", field)
		}
		key = strings.ToLower(key)
		switch key {
		case "age":
			age, err := strconv.Atoi(value)
			if err != nil || age <= 0 || age > 120 {
				return p, fmt.Errorf("invalid age %q", value)
			}
			out.Age = age
		case "experience":
			level := models.ExperienceLevel(strings.ToLower(value))
			switch level {
			case models.ExperienceBeginner, models.ExperienceIntermediate, models.ExperienceAdvanced:
				out.ExperienceLevel = level
			default:
				return p, fmt.Errorf("experience must be beginner, intermediate or advanced")
			}
		case "risk":
			out.RiskTolerance = strings.ToLower(value)
		case "budget", "portfolio":
			amount, err := strconv.ParseFloat(strings.TrimPrefix(value, "$"), 64)
			if err != nil || amount < 0 {
				return p, fmt.Errorf("invalid %s %q", key, value)
			}
			if key == "budget" {
				out.Budget = amount
			} else {
				out.PortfolioValue = amount
			}
		case "goals":
			out.Goals = splitList(value)
		case "interests":
			out.Interests = splitList(value)
		default:
			return p, fmt.Errorf("unknown profile field %q", key)
		}
	}
	return out, nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
