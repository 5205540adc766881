package generation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/replyloop/x-reply-bot/internal/config"
	"github.com/replyloop/x-reply-bot/internal/models"
	"github.com/replyloop/x-reply-bot/internal/safety"
	"github.com/sirupsen/logrus"
)

// Generator is the interface the orchestrator uses to produce reply text.
type Generator interface {
	GenerateReply(tweet models.ProcessedTweet) (string, error)
}

// TextCompleter is the underlying model API (implemented by PerplexityClient).
type TextCompleter interface {
	Generate(prompt, model string, temperature float64, maxTokens int) (string, error)
}

// ReplyGenerator produces AI replies to tweets: it builds a context-enhanced
// prompt, cleans the raw model output, and gates the result through the
// content safety filter.
type ReplyGenerator struct {
	completer TextCompleter
	config    config.ReplyConfig
	filter    *safety.Filter
	now       func() time.Time
}

var (
	bangRunPattern     = regexp.MustCompile(`!{3,}`)
	questionRunPattern = regexp.MustCompile(`\?{3,}`)
	dotRunPattern      = regexp.MustCompile(`\.{4,}`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
)

// aiPrefixes are boilerplate lead-ins models tend to produce.
var aiPrefixes = []string{
	"here's a reply:",
	"reply:",
	"response:",
	"here's an impactful reply:",
	"an impactful reply would be:",
}

// NewReplyGenerator creates a reply generator.
func NewReplyGenerator(completer TextCompleter, cfg config.ReplyConfig) *ReplyGenerator {
	logrus.Infof("Reply generator initialized (model=%s, temperature=%.2f, max_length=%d)",
		cfg.Model, cfg.Temperature, cfg.MaxReplyLength)

	return &ReplyGenerator{
		completer: completer,
		config:    cfg,
		filter:    safety.NewFilter(),
		now:       time.Now,
	}
}

// GenerateReply produces a safe, cleaned reply for the tweet, or an error when
// generation fails or the result does not pass the safety filter.
func (g *ReplyGenerator) GenerateReply(tweet models.ProcessedTweet) (string, error) {
	logrus.Infof("Generating reply for tweet %s by @%s", tweet.ID, tweet.AuthorUsername)

	prompt := g.buildPrompt(tweet)

	raw, err := g.completer.Generate(prompt, g.config.Model, g.config.Temperature, g.config.MaxReplyLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate reply for tweet %s: %w", tweet.ID, err)
	}

	reply := cleanReply(raw)
	if reply == "" {
		return "", fmt.Errorf("model returned an empty reply for tweet %s", tweet.ID)
	}

	if utf8.RuneCountInString(reply) > g.config.MaxReplyLength {
		// Truncate on runes so a multibyte character is never split.
		runes := []rune(reply)
		if g.config.MaxReplyLength > 3 {
			reply = string(runes[:g.config.MaxReplyLength-3]) + "..."
		} else {
			reply = string(runes[:g.config.MaxReplyLength])
		}
	}

	result := g.filter.IsSafeContent(reply)
	logrus.Infof("Safety check for tweet %s: safe=%v confidence=%.2f reason=%q",
		tweet.ID, result.IsSafe, result.Confidence, result.Reason)

	if !result.IsSafe {
		return "", fmt.Errorf("generated reply failed safety check: %s", result.Reason)
	}

	logrus.Infof("Reply generated for tweet %s (%d chars)", tweet.ID, len(reply))
	return reply, nil
}

// buildPrompt fills the configured base prompt and appends tweet context and
// guidelines the model should follow.
func (g *ReplyGenerator) buildPrompt(tweet models.ProcessedTweet) string {
	var contextParts []string

	if topics := tweetTopics(tweet, 3); len(topics) > 0 {
		contextParts = append(contextParts, "Topics: "+strings.Join(topics, ", "))
	}

	switch engagement := tweet.PublicMetrics.Total(); {
	case engagement > 100:
		contextParts = append(contextParts, "High engagement tweet")
	case engagement > 50:
		contextParts = append(contextParts, "Moderate engagement tweet")
	}

	switch age := g.now().Sub(tweet.CreatedAt); {
	case age < time.Hour:
		contextParts = append(contextParts, "Recent tweet")
	case age < 6*time.Hour:
		contextParts = append(contextParts, "Posted today")
	}

	contextParts = append(contextParts, "Author: @"+tweet.AuthorUsername)

	basePrompt := strings.ReplaceAll(g.config.BasePrompt, "{tweet_content}", tweet.Text)

	return fmt.Sprintf(`%s

Context: %s
Tweet: %q

Guidelines:
- Keep response under %d characters
- Provide educational value with facts or insights
- Challenge conventional thinking respectfully
- Use current information when relevant
- Be engaging and thought-provoking
- Avoid political extremes or controversial topics
- Don't repeat the original tweet's content
- Make it conversational and authentic`,
		basePrompt, strings.Join(contextParts, "; "), tweet.Text, g.config.MaxReplyLength)
}

// tweetTopics extracts up to max topic names from the tweet's context
// annotations.
func tweetTopics(tweet models.ProcessedTweet, max int) []string {
	var topics []string
	seen := make(map[string]bool)

	for _, ann := range tweet.ContextAnnotations {
		name := ann.Entity["name"]
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		topics = append(topics, name)
		if len(topics) == max {
			break
		}
	}

	return topics
}

// cleanReply normalizes raw model output: strips wrapping quotes and known AI
// prefixes, collapses punctuation runs and whitespace, sentence-cases the
// first letter, and ensures terminal punctuation.
func cleanReply(reply string) string {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return ""
	}

	if strings.HasPrefix(reply, `"`) && strings.HasSuffix(reply, `"`) && len(reply) > 1 {
		reply = strings.TrimSpace(reply[1 : len(reply)-1])
	}

	for _, prefix := range aiPrefixes {
		if strings.HasPrefix(strings.ToLower(reply), prefix) {
			reply = strings.TrimSpace(reply[len(prefix):])
			break
		}
	}

	reply = bangRunPattern.ReplaceAllString(reply, "!!")
	reply = questionRunPattern.ReplaceAllString(reply, "??")
	reply = dotRunPattern.ReplaceAllString(reply, "...")
	reply = strings.TrimSpace(whitespacePattern.ReplaceAllString(reply, " "))

	if reply == "" {
		return ""
	}

	runes := []rune(reply)
	runes[0] = unicode.ToUpper(runes[0])
	reply = string(runes)

	if last := reply[len(reply)-1]; last != '.' && last != '!' && last != '?' {
		reply += "."
	}

	return reply
}
