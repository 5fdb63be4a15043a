package conversation

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/xaenox/finley/internal/models"
)

const (
	summaryHeader      = "[Previous conversation summary]"
	userRoleBoost      = 1.5
	exchangesInSummary = 4
	exchangeMaxChars   = 120
	topicWindow        = 5
)

// Compressor ranks history for relevance and folds old messages into a summary.
type Compressor struct {
	cfg Config
}

// NewCompressor creates a new Compressor.
func NewCompressor(cfg Config) *Compressor {
	return &Compressor{cfg: cfg}
}

func (c *Compressor) Config() Config {
	return c.cfg
}

// NeedsCompression reports whether the raw list is over the threshold.
func (c *Compressor) NeedsCompression(session *models.ConversationSession) bool {
	return session != nil && len(session.Messages) > c.cfg.CompressionThreshold
}

// Compress replaces all but the newest KeepRecent messages with a single
// system message holding a summary. It returns false and leaves the session
// alone when the threshold is not exceeded, so a repeat call is a no-op.
func (c *Compressor) Compress(session *models.ConversationSession) bool {
	if !c.NeedsCompression(session) {
		return false
	}

	cut := len(session.Messages) - c.cfg.KeepRecent
	older := session.Messages[:cut]
	kept := session.Messages[cut:]

	summary := c.Summarize(older)
	content := summaryHeader + "\n" + summary
	summaryMsg := models.Message{
		ID:            uuid.New().String(),
		Role:          models.RoleSystem,
		Content:       content,
		Timestamp:     older[len(older)-1].Timestamp,
		TokenEstimate: EstimateTokens(content),
	}

	messages := make([]models.Message, 0, len(kept)+1)
	messages = append(messages, summaryMsg)
	messages = append(messages, kept...)

	session.Messages = messages
	session.Summary = summary
	session.Metadata.Compressed = true
	Recount(session)
	return true
}

// Summarize lists the topics covered and the last few exchanges, truncated
// to SummaryMaxChars.
func (c *Compressor) Summarize(messages []models.Message) string {
	var all strings.Builder
	for _, msg := range messages {
		all.WriteString(msg.Content)
		all.WriteString("\n")
	}

	tags := topicTags(all.String())
	var discussed []string
	for _, t := range topics {
		if _, ok := tags[t.name]; ok {
			discussed = append(discussed, t.name)
		}
	}
	if len(discussed) == 0 {
		discussed = []string{"general"}
	}

	var sb strings.Builder
	sb.WriteString("Topics discussed: ")
	sb.WriteString(strings.Join(discussed, ", "))
	sb.WriteString(".")

	var exchanges []models.Message
	for i := len(messages) - 1; i >= 0 && len(exchanges) < exchangesInSummary; i-- {
		if messages[i].Role != models.RoleSystem {
			exchanges = append(exchanges, messages[i])
		}
	}
	if len(exchanges) > 0 {
		sb.WriteString("\nRecent exchanges:")
		for i := len(exchanges) - 1; i >= 0; i-- {
			msg := exchanges[i]
			speaker := "Student"
			if msg.Role == models.RoleAssistant {
				speaker = "Finley"
			}
			sb.WriteString(fmt.Sprintf("\n- %s: %s", speaker, truncate(oneLine(msg.Content), exchangeMaxChars)))
		}
	}

	return truncate(sb.String(), c.cfg.SummaryMaxChars)
}

// Topic returns the dominant topic of the last few messages, or "general".
func (c *Compressor) Topic(messages []models.Message) string {
	start := len(messages) - topicWindow
	if start < 0 {
		start = 0
	}
	var text strings.Builder
	for _, msg := range messages[start:] {
		text.WriteString(strings.ToLower(msg.Content))
		text.WriteString(" ")
	}
	lower := text.String()

	best, bestScore := "general", 0
	for _, t := range topics {
		score := 0
		for _, kw := range t.keywords {
			score += strings.Count(lower, kw)
		}
		if score > bestScore {
			best, bestScore = t.name, score
		}
	}
	return best
}

// GetRelevantContext returns the recent window plus the best-scoring older
// messages, trimmed from the oldest end to fit budget tokens. A budget <= 0
// means no trimming.
func (c *Compressor) GetRelevantContext(messages []models.Message, query string, budget int) []models.Message {
	var selected []models.Message

	window := c.cfg.RecentWindow
	if window <= 0 || len(messages) <= window {
		selected = append(selected, messages...)
	} else {
		split := len(messages) - window
		older, recent := messages[:split], messages[split:]

		queryKeywords := extractKeywords(query)
		queryTopics := topicTags(query)

		type scored struct {
			index int
			score float64
		}
		var candidates []scored
		for i, msg := range older {
			score := float64(overlap(queryKeywords, extractKeywords(msg.Content))*2 +
				overlap(queryTopics, topicTags(msg.Content))*3)
			if msg.Role == models.RoleUser {
				score *= userRoleBoost
			}
			if score > 0 {
				candidates = append(candidates, scored{index: i, score: score})
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].score > candidates[j].score
		})
		if len(candidates) > c.cfg.RelevantLimit {
			candidates = candidates[:c.cfg.RelevantLimit]
		}
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].index < candidates[j].index
		})

		selected = make([]models.Message, 0, len(candidates)+len(recent))
		for _, cand := range candidates {
			selected = append(selected, older[cand.index])
		}
		selected = append(selected, recent...)
	}

	if budget > 0 {
		total := 0
		for _, msg := range selected {
			total += messageTokens(msg)
		}
		for len(selected) > 0 && total > budget {
			total -= messageTokens(selected[0])
			selected = selected[1:]
		}
	}
	return selected
}

func messageTokens(msg models.Message) int {
	if msg.TokenEstimate > 0 {
		return msg.TokenEstimate
	}
	return EstimateTokens(msg.Content)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 3 {
		return string([]rune(s)[:max])
	}
	return string([]rune(s)[:max-3]) + "..."
}
