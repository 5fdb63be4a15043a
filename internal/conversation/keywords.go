package conversation

import (
	"strings"
	"unicode"
)

type topic struct {
	name     string
	keywords []string
}

// Topics in a fixed order so summaries come out the same every time
var topics = []topic{
	{"stocks", []string{"stock", "share", "equity", "equities", "ticker"}},
	{"bonds", []string{"bond", "treasury", "fixed income", "coupon"}},
	{"etfs", []string{"etf", "index fund", "exchange traded fund", "mutual fund"}},
	{"crypto", []string{"crypto", "bitcoin", "ethereum", "blockchain", "nft"}},
	{"savings", []string{"save", "saving", "budget", "emergency fund", "bank account"}},
	{"risk", []string{"risk", "volatil", "safe", "lose money", "uncertain"}},
	{"portfolio", []string{"portfolio", "diversif", "allocation", "rebalanc"}},
	{"retirement", []string{"retire", "401k", "401(k)", "ira", "pension"}},
}

var stopWords = map[string]bool{
	"about": true, "above": true, "after": true, "again": true, "also": true,
	"been": true, "before": true, "being": true, "could": true, "does": true,
	"doing": true, "from": true, "have": true, "having": true, "here": true,
	"into": true, "just": true, "like": true, "more": true, "most": true,
	"much": true, "need": true, "only": true, "other": true, "really": true,
	"should": true, "some": true, "such": true, "than": true, "that": true,
	"their": true, "them": true, "then": true, "there": true, "these": true,
	"they": true, "thing": true, "this": true, "those": true, "very": true,
	"want": true, "what": true, "when": true, "where": true, "which": true,
	"while": true, "will": true, "with": true, "would": true, "your": true,
	"yours": true, "know": true, "tell": true, "explain": true,
}

// extractKeywords lower-cases, strips punctuation and keeps words longer
// than three characters that are not stop words.
func extractKeywords(text string) map[string]struct{} {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	out := make(map[string]struct{})
	for _, word := range strings.Fields(cleaned) {
		if len(word) <= 3 || stopWords[word] {
			continue
		}
		out[word] = struct{}{}
	}
	return out
}

// topicTags returns the names of every topic mentioned in text.
func topicTags(text string) map[string]struct{} {
	lower := strings.ToLower(text)
	out := make(map[string]struct{})
	for _, t := range topics {
		for _, kw := range t.keywords {
			if strings.Contains(lower, kw) {
				out[t.name] = struct{}{}
				break
			}
		}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
