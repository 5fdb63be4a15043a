package safety

import (
	"regexp"
	"strings"

	"github.com/xaenox/finley/internal/models"
)

// Verdict types
const (
	TypeImplicitAdvice = "implicit_advice"
	TypeSpecificStock  = "specific_stock"
	TypeIllegalScheme  = "illegal_scheme"
	TypePersonalInfo   = "personal_info"
	TypeProfanity      = "profanity"
	TypeAgeRestricted  = "age_restricted"
)

// Substitute messages shown instead of blocked content
const (
	MessageImplicitAdvice = "I can't tell you what to buy or promise any returns, but I can explain how investments work so you can make your own informed choices. What would you like to learn about? 📚"
	MessageSpecificStock  = "I can't recommend buying or selling specific stocks. Instead, let's learn how to research a company: look at what it sells, how it makes money, and how risky it is. Want to walk through that together? 🔍"
	MessageIllegalScheme  = "That sounds like something illegal or a scam, so I can't help with it. Let's talk about how to spot investment scams and protect your money instead! 🛡️"
	MessagePersonalInfo   = "Let's keep personal information private! Never share things like passwords, account numbers or your address in a chat. What investing topic can I help you with? 🔒"
	MessageProfanity      = "Let's keep our chat friendly and respectful. What would you like to learn about investing today? 🙂"
	MessageAgeRestricted  = "Gambling and betting aren't investing, and they're not something I can help with. Want to learn how real investing is different from gambling? 🎯"
)

type rule struct {
	kind    string
	message string
	// minorsOnly rules are skipped for users 18 and over
	minorsOnly bool
	match      func(text string) (string, bool)
}

func patternRule(kind, message string, patterns ...string) rule {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return rule{
		kind:    kind,
		message: message,
		match: func(text string) (string, bool) {
			for _, re := range compiled {
				if m := re.FindString(text); m != "" {
					return m, true
				}
			}
			return "", false
		},
	}
}

var companyPattern = regexp.MustCompile(`(?i)\b(?:buy|sell|short|purchase|invest in|dump)\s+(?:some\s+|more\s+|a few\s+)?(?:shares?\s+(?:of|in)\s+|stocks?\s+in\s+)?(tesla|apple|amazon|google|alphabet|microsoft|meta|facebook|netflix|nvidia|gamestop|amc|disney|nike|coca[- ]cola|walmart|starbucks|spotify|roblox)\b`)

var tickerPattern = regexp.MustCompile(`\b(?i:buy|sell|short|purchase|invest in|dump)\s+(?i:some\s+|more\s+)?(?i:shares?\s+of\s+)?\$?([A-Z]{2,5})\b`)

// Upper-case words that follow "buy" without being a ticker: common words
// typed in caps for emphasis and finance acronyms.
var notTickers = map[string]bool{
	"ETF": true, "ETFS": true, "IRA": true, "CD": true, "CDS": true, "USD": true,
	"REIT": true, "BOND": true, "NFT": true, "NFTS": true, "IPO": true, "AND": true,
	"THE": true, "IT": true, "ANY": true, "ALL": true, "LOW": true, "HIGH": true,
	"US": true, "USA": true, "UK": true, "EU": true, "EUR": true, "GBP": true,
	"TIME": true, "INTO": true, "IN": true, "ON": true, "AT": true, "TO": true,
	"OR": true, "OF": true, "IF": true, "SO": true, "NO": true, "NOT": true,
	"NOW": true, "NEW": true, "ONE": true, "TWO": true, "BIG": true, "AN": true,
	"ME": true, "MY": true, "YOU": true, "YOUR": true, "WE": true, "OUR": true,
	"HIS": true, "HER": true, "ITS": true, "SOME": true, "MORE": true, "LESS": true,
	"BACK": true, "UP": true, "OUT": true, "FOR": true, "WITH": true, "THAT": true,
	"THIS": true, "THEM": true, "WHAT": true, "WHEN": true, "JUST": true, "ONLY": true,
	"GOLD": true, "CASH": true, "HOME": true, "LAND": true, "FOOD": true, "GAS": true,
	"OIL": true, "TV": true, "PC": true, "OK": true, "OKAY": true, "ASAP": true,
	"HSA": true, "FSA": true, "APR": true, "APY": true, "GDP": true, "CPI": true,
	"FDIC": true, "SEC": true, "IRS": true, "LLC": true, "CEO": true, "ETN": true,
}

func matchSpecificStock(text string) (string, bool) {
	if m := companyPattern.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	for _, m := range tickerPattern.FindAllStringSubmatch(text, -1) {
		if !notTickers[m[1]] {
			return m[1], true
		}
	}
	return "", false
}

// Rules are evaluated in order; the first match decides the verdict.
var rules = []rule{
	patternRule(TypeImplicitAdvice, MessageImplicitAdvice,
		`(?i)\b(?:you should|you must|you need to|i recommend|i suggest|i'd recommend|i would recommend)\s+(?:buy|sell|invest in|buying|selling|investing in|purchase|purchasing)\b`,
		`(?i)\bguaranteed\s+(?:to\s+(?:make|earn|win)|returns?|profits?|gains?)\b`,
		`(?i)\brisk[- ]free\s+(?:investments?|returns?|profits?)\b`,
		`(?i)\b(?:can't|cannot|can not) lose\b`,
		`(?i)\bget rich (?:quick|fast)\b`,
		`(?i)\bdouble your (?:money|investment)\b`,
	),
	{kind: TypeSpecificStock, message: MessageSpecificStock, match: matchSpecificStock},
	patternRule(TypeIllegalScheme, MessageIllegalScheme,
		`(?i)\bpump[- ]and[- ]dump\b`,
		`(?i)\bponzi\b`,
		`(?i)\bpyramid scheme\b`,
		`(?i)\binsider (?:trading|tips?|information)\b`,
		`(?i)\bmoney laundering\b|\blaunder(?:ing)? money\b`,
		`(?i)\btax evasion\b|\bevade taxes\b`,
		`(?i)\bmarket manipulation\b|\bmanipulate the (?:market|price)\b`,
		`(?i)\bfake (?:id|account|reviews)\b`,
	),
	patternRule(TypePersonalInfo, MessagePersonalInfo,
		`(?i)\b(?:what'?s|what is|give me|tell me|send me|share) your (?:full name|home address|address|phone(?: number)?|email|password|pin|ssn|social security(?: number)?|bank account|routing number|credit card)\b`,
		`(?i)\bmy (?:password|pin|ssn|social security number|credit card number|bank account number|home address) is\b`,
		`\b\d{3}-\d{2}-\d{4}\b`,
	),
	patternRule(TypeProfanity, MessageProfanity,
		`(?i)\b(?:damn|crap|shit\w*|fuck\w*|bitch\w*|bastard|asshole|dick|piss(?:ed)?)\b`,
	),
	func() rule {
		r := patternRule(TypeAgeRestricted, MessageAgeRestricted,
			`(?i)\b(?:gambling|gamble|betting|sports bets?|casino|slot machines?|poker for money)\b`,
		)
		r.minorsOnly = true
		return r
	}(),
}

// Check runs the block rules against text. The first matching rule
// short-circuits and its substitute message replaces the content.
func Check(text string, profile models.UserProfile) models.SafetyVerdict {
	if strings.TrimSpace(text) == "" {
		return models.SafetyVerdict{}
	}
	adult := profile.Age >= 18 && profile.Age <= maxValidAge
	for _, r := range rules {
		if r.minorsOnly && adult {
			continue
		}
		if entity, ok := r.match(text); ok {
			return models.SafetyVerdict{
				Detected: true,
				Type:     r.kind,
				Message:  r.message,
				Entity:   entity,
			}
		}
	}
	return models.SafetyVerdict{}
}
