package selection

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/replyloop/x-reply-bot/internal/config"
	"github.com/replyloop/x-reply-bot/internal/models"
	"github.com/sirupsen/logrus"
)

// Scoring weights. The four sub-scores are each 0.0-1.0 and the weighted sum
// is scaled to a 0-100 selection score.
const (
	engagementWeight      = 0.40
	recencyWeight         = 0.25
	contentQualityWeight  = 0.20
	authorInfluenceWeight = 0.15

	// Weighted engagement at or above this gets the maximum engagement score.
	maxWeightedEngagement = 1000
)

var (
	urlPattern      = regexp.MustCompile(`https?://[a-zA-Z0-9$\-_@.&+!*(),%]+`)
	mentionPattern  = regexp.MustCompile(`@\w+`)
	questionPattern = regexp.MustCompile(`\?`)

	controversyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(should|shouldn't|wrong|right|believe|think|opinion)\b`),
		regexp.MustCompile(`\b(always|never|everyone|nobody|all|none)\b`),
		regexp.MustCompile(`\b(best|worst|better|worse)\b`),
	}

	educationalKeywords = []string{
		"study", "research", "data", "fact", "evidence",
		"according to", "shows that", "found that",
	}

	promotionalKeywords = []string{
		"buy", "sale", "discount", "offer", "deal",
		"click here", "link in bio", "dm me",
	}

	aggressiveKeywords = []string{"hate", "stupid", "idiot", "moron", "pathetic"}
)

// Selector picks the best candidate tweets to reply to. It is synchronous and
// side-effect-free apart from logging, so concurrent callers need no locking.
type Selector struct {
	config config.SelectionConfig
	now    func() time.Time
}

// NewSelector creates a selector. The config is expected to be normalized
// (blacklists lowercased) by the config loader.
func NewSelector(cfg config.SelectionConfig) *Selector {
	logrus.Infof("Tweet selector initialized (max_tweets=%d, min_engagement=%d)",
		cfg.MaxTweetsPerRun, cfg.MinEngagementThreshold)

	return &Selector{
		config: cfg,
		now:    time.Now,
	}
}

// SelectTweets filters the candidate batch, scores the survivors, and returns
// them sorted by score descending, truncated to MaxTweetsPerRun. An empty or
// fully filtered batch returns an empty result, not an error. A tweet whose
// scoring fails is logged and skipped without aborting the batch.
func (s *Selector) SelectTweets(tweets []models.Tweet) []models.ProcessedTweet {
	if len(tweets) == 0 {
		logrus.Warn("No tweets provided for selection")
		return nil
	}

	logrus.Infof("Starting tweet selection with %d candidates", len(tweets))

	filtered := s.filterTweets(tweets)
	logrus.Infof("Tweets after filtering: %d", len(filtered))

	if len(filtered) == 0 {
		logrus.Warn("No tweets passed filtering criteria")
		return nil
	}

	scored := make([]models.ProcessedTweet, 0, len(filtered))
	for _, tweet := range filtered {
		score, err := s.scoreTweet(tweet)
		if err != nil {
			logrus.Warnf("Failed to score tweet %s: %v", tweet.ID, err)
			continue
		}

		scored = append(scored, models.ProcessedTweet{
			Tweet:               tweet,
			SelectionScore:      score,
			ProcessingTimestamp: s.now(),
		})
	}

	// Stable sort keeps input order for equal scores, making ties deterministic.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].SelectionScore > scored[j].SelectionScore
	})

	if len(scored) > s.config.MaxTweetsPerRun {
		scored = scored[:s.config.MaxTweetsPerRun]
	}

	for i, tweet := range scored {
		logrus.Debugf("Selected tweet rank=%d id=%s score=%.2f author=%s",
			i+1, tweet.ID, tweet.SelectionScore, tweet.AuthorUsername)
	}
	logrus.Infof("Tweet selection completed, selected %d tweets", len(scored))

	return scored
}

// filterTweets applies the hard selection predicates. All must pass; the order
// only affects short-circuit cost, not the result set.
func (s *Selector) filterTweets(tweets []models.Tweet) []models.Tweet {
	var filtered []models.Tweet
	now := s.now()

	for _, tweet := range tweets {
		ageHours := now.Sub(tweet.CreatedAt).Hours()
		if ageHours > float64(s.config.MaxTweetAgeHours) {
			continue
		}

		if tweet.PublicMetrics.Total() < s.config.MinEngagementThreshold {
			continue
		}

		if s.config.ExcludeRetweets && tweet.IsRetweet() {
			continue
		}

		if s.config.ExcludeReplies && tweet.IsReply() {
			continue
		}

		if s.isBlacklistedUser(tweet.AuthorUsername) {
			continue
		}

		if s.containsBlacklistedKeyword(tweet.Text) {
			continue
		}

		// Very short tweets are rarely worth a reply.
		if len(strings.TrimSpace(tweet.Text)) < 20 {
			continue
		}

		if isMostlyURLsOrMentions(tweet.Text) {
			continue
		}

		filtered = append(filtered, tweet)
	}

	return filtered
}

func (s *Selector) isBlacklistedUser(username string) bool {
	lower := strings.ToLower(username)
	for _, blocked := range s.config.BlacklistedUsers {
		if lower == blocked {
			return true
		}
	}
	return false
}

func (s *Selector) containsBlacklistedKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, keyword := range s.config.BlacklistedKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// scoreTweet returns the 0-100 selection score for a tweet that passed
// filtering.
func (s *Selector) scoreTweet(tweet models.Tweet) (float64, error) {
	if tweet.ID == "" {
		return 0, fmt.Errorf("tweet has no ID")
	}

	score := engagementScore(tweet)*engagementWeight +
		s.recencyScore(tweet)*recencyWeight +
		contentQualityScore(tweet)*contentQualityWeight +
		authorInfluenceScore(tweet)*authorInfluenceWeight

	return math.Min(score*100, 100), nil
}

// engagementScore maps weighted engagement onto 0.0-1.0 with a log scale so
// viral outliers don't dominate. Retweets and quotes weigh more than likes
// because they signal stronger endorsement.
func engagementScore(tweet models.Tweet) float64 {
	m := tweet.PublicMetrics
	weighted := float64(m.LikeCount)*1.0 +
		float64(m.RetweetCount)*2.0 +
		float64(m.ReplyCount)*1.5 +
		float64(m.QuoteCount)*1.8

	if weighted <= 0 {
		return 0
	}

	normalized := math.Log(weighted+1) / math.Log(maxWeightedEngagement+1)
	return math.Min(normalized, 1.0)
}

// recencyScore decays linearly from 1.0 at zero age to 0.0 at the max age.
func (s *Selector) recencyScore(tweet models.Tweet) float64 {
	maxAge := float64(s.config.MaxTweetAgeHours)
	ageHours := s.now().Sub(tweet.CreatedAt).Hours()

	if ageHours >= maxAge {
		return 0
	}
	return (maxAge - ageHours) / maxAge
}

// contentQualityScore is an additive heuristic over length, discussion
// potential, opinion and educational signals, floored at zero.
func contentQualityScore(tweet models.Tweet) float64 {
	text := strings.ToLower(tweet.Text)
	score := 0.0

	// Length sweet spot: 50-200 characters.
	length := len(tweet.Text)
	switch {
	case length >= 50 && length <= 200:
		score += 0.3
	case (length >= 20 && length < 50) || (length > 200 && length <= 280):
		score += 0.15
	}

	if questionPattern.MatchString(text) {
		score += 0.2
	}

	controversyCount := 0
	for _, pattern := range controversyPatterns {
		if pattern.MatchString(text) {
			controversyCount++
		}
	}
	score += math.Min(float64(controversyCount)*0.15, 0.3)

	educationalCount := 0
	for _, keyword := range educationalKeywords {
		if strings.Contains(text, keyword) {
			educationalCount++
		}
	}
	score += math.Min(float64(educationalCount)*0.1, 0.2)

	for _, keyword := range promotionalKeywords {
		if strings.Contains(text, keyword) {
			score -= 0.3
			break
		}
	}

	for _, keyword := range aggressiveKeywords {
		if strings.Contains(text, keyword) {
			score -= 0.2
			break
		}
	}

	return math.Max(score, 0)
}

// authorInfluenceScore is a baseline constant for every author. Follower
// counts and verification status don't cross the API boundary in this design,
// a known simplification rather than a bug.
func authorInfluenceScore(models.Tweet) float64 {
	return 0.5
}

// isMostlyURLsOrMentions rejects tweets whose text is dominated by links and
// @mentions (more than 60% of the characters).
func isMostlyURLsOrMentions(text string) bool {
	if len(text) == 0 {
		return true
	}

	linkChars := 0
	for _, url := range urlPattern.FindAllString(text, -1) {
		linkChars += len(url)
	}
	for _, mention := range mentionPattern.FindAllString(text, -1) {
		linkChars += len(mention)
	}

	return float64(linkChars)/float64(len(text)) > 0.6
}
