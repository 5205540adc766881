package safety

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/replyloop/x-reply-bot/internal/models"
)

// Filter vets generated reply text before it may be posted. It is stateless:
// every check is a pure function over its input and safe for concurrent use.
type Filter struct {
	unsafePatterns      []*regexp.Regexp
	politicalKeywords   []string
	controversialTopics []string
	spamPatterns        []*regexp.Regexp
}

var (
	urlPattern         = regexp.MustCompile(`https?://[a-zA-Z0-9$\-_@.&+!*(),%]+`)
	leadingTagPattern  = regexp.MustCompile(`^[@#]\w+\s*`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
	bangRunPattern     = regexp.MustCompile(`!{2,}$`)
	questionRunPattern = regexp.MustCompile(`\?{2,}$`)
)

// NewFilter creates a content safety filter with the built-in rule sets.
func NewFilter() *Filter {
	unsafe := []string{
		`\b(hate|hatred|violence|violent|threat|threaten)\b`,
		`\b(kill|murder|die|death|suicide)\b`,
		`\b(racist|racism|sexist|sexism|homophobic|homophobia)\b`,
		`\b(nazi|hitler|genocide)\b`,
		`\b(terrorist|terrorism|bomb|bombing)\b`,
		`\b(rape|sexual assault)\b`,
		`\b(fuck|shit|damn|hell|bitch|asshole)\b`,
	}

	spam := []string{
		`(buy now|click here|limited time|act fast)`,
		`(make money|get rich|earn \$\d+)`,
		`(follow me|check out my)`,
		`(dm me|send me a message)`,
		`(link in bio|see my profile)`,
	}

	f := &Filter{
		politicalKeywords: []string{
			"trump", "biden", "democrat", "republican", "liberal", "conservative",
			"maga", "antifa", "blm", "election", "vote", "voting", "politics",
			"political", "government", "congress", "senate", "president",
		},
		controversialTopics: []string{
			"abortion", "gun control", "immigration", "climate change",
			"vaccine", "covid", "religion", "religious", "god", "jesus",
			"muslim", "christian", "jewish", "atheist",
		},
	}

	for _, p := range unsafe {
		f.unsafePatterns = append(f.unsafePatterns, regexp.MustCompile(p))
	}
	for _, p := range spam {
		f.spamPatterns = append(f.spamPatterns, regexp.MustCompile(p))
	}

	return f
}

// IsSafeContent classifies text for posting. Rules run in a fixed order and
// the first match wins. It never returns an error; the result always
// describes the outcome.
func (f *Filter) IsSafeContent(text string) models.SafetyCheckResult {
	lower := strings.ToLower(strings.TrimSpace(text))

	if lower == "" {
		return models.SafetyCheckResult{
			IsSafe:     false,
			Reason:     "Empty content",
			Confidence: 1.0,
		}
	}

	for _, pattern := range f.unsafePatterns {
		if pattern.MatchString(lower) {
			return models.SafetyCheckResult{
				IsSafe:     false,
				Reason:     fmt.Sprintf("Contains unsafe content: %s", pattern.String()),
				Confidence: 0.9,
			}
		}
	}

	politicalCount := 0
	for _, keyword := range f.politicalKeywords {
		if strings.Contains(lower, keyword) {
			politicalCount++
		}
	}
	if politicalCount > 2 {
		return models.SafetyCheckResult{
			IsSafe:     false,
			Reason:     "Too much political content",
			Confidence: 0.8,
		}
	}

	// Controversial topics are allowed, just flagged with lower confidence.
	controversialCount := 0
	for _, topic := range f.controversialTopics {
		if strings.Contains(lower, topic) {
			controversialCount++
		}
	}
	if controversialCount > 1 {
		return models.SafetyCheckResult{
			IsSafe:     true,
			Reason:     "Contains controversial topics",
			Confidence: 0.6,
		}
	}

	for _, pattern := range f.spamPatterns {
		if pattern.MatchString(lower) {
			return models.SafetyCheckResult{
				IsSafe:     false,
				Reason:     "Appears to be spam or promotional",
				Confidence: 0.8,
			}
		}
	}

	// Length limits count characters, not bytes.
	if utf8.RuneCountInString(text) > 280 {
		return models.SafetyCheckResult{
			IsSafe:     false,
			Reason:     "Exceeds character limit",
			Confidence: 1.0,
		}
	}

	if utf8.RuneCountInString(text) < 10 {
		return models.SafetyCheckResult{
			IsSafe:     false,
			Reason:     "Content too short to be meaningful",
			Confidence: 0.9,
		}
	}

	return models.SafetyCheckResult{
		IsSafe:     true,
		Reason:     "Content appears safe",
		Confidence: 0.95,
	}
}

// SafetyScore returns 0.0 for unsafe text, else the check's confidence.
func (f *Filter) SafetyScore(text string) float64 {
	result := f.IsSafeContent(text)
	if !result.IsSafe {
		return 0.0
	}
	return result.Confidence
}

// CleanText is a best-effort normalizer applied before safety checking: it
// strips URLs and a leading @mention/#hashtag, collapses whitespace and
// trailing punctuation runs. It is not a safety control itself.
func CleanText(text string) string {
	text = urlPattern.ReplaceAllString(text, "")
	text = leadingTagPattern.ReplaceAllString(text, "")
	text = strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
	text = bangRunPattern.ReplaceAllString(text, "!")
	text = questionRunPattern.ReplaceAllString(text, "?")
	return text
}

// HashText returns a short stable hash of text, used for deduplication.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

// IsSimilarContent reports whether two texts share at least threshold of their
// combined vocabulary (word-level Jaccard similarity).
func IsSimilarContent(a, b string, threshold float64) bool {
	wordsA := wordSet(a)
	wordsB := wordSet(b)

	if len(wordsA) == 0 || len(wordsB) == 0 {
		return false
	}

	intersection := 0
	union := len(wordsB)
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		} else {
			union++
		}
	}

	return float64(intersection)/float64(union) >= threshold
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = true
	}
	return set
}
