package models

import "time"

// PublicMetrics holds the public engagement counters of a tweet.
type PublicMetrics struct {
	LikeCount    int `json:"like_count"`
	RetweetCount int `json:"retweet_count"`
	ReplyCount   int `json:"reply_count"`
	QuoteCount   int `json:"quote_count"`
}

// Total returns the sum of all engagement counters.
func (m PublicMetrics) Total() int {
	return m.LikeCount + m.RetweetCount + m.ReplyCount + m.QuoteCount
}

// ReferencedTweet links a tweet to another tweet it retweets, quotes or replies to.
type ReferencedTweet struct {
	Type string `json:"type"` // "retweeted", "quoted", "replied_to"
	ID   string `json:"id"`
}

// ContextAnnotation carries Twitter's topic tagging for a tweet.
type ContextAnnotation struct {
	Domain map[string]string `json:"domain,omitempty"`
	Entity map[string]string `json:"entity,omitempty"`
}

// Tweet is a candidate tweet as fetched from the Twitter API. Immutable once fetched.
type Tweet struct {
	ID                 string              `json:"id"`
	Text               string              `json:"text"`
	AuthorID           string              `json:"author_id"`
	AuthorUsername     string              `json:"author_username"`
	AuthorName         string              `json:"author_name"`
	CreatedAt          time.Time           `json:"created_at"`
	PublicMetrics      PublicMetrics       `json:"public_metrics"`
	ContextAnnotations []ContextAnnotation `json:"context_annotations,omitempty"`
	ReferencedTweets   []ReferencedTweet   `json:"referenced_tweets,omitempty"`
	Lang               string              `json:"lang,omitempty"`
}

// IsRetweet reports whether the tweet is a retweet of another tweet.
func (t Tweet) IsRetweet() bool {
	for _, ref := range t.ReferencedTweets {
		if ref.Type == "retweeted" {
			return true
		}
	}
	return false
}

// IsReply reports whether the tweet is a reply to another tweet.
func (t Tweet) IsReply() bool {
	for _, ref := range t.ReferencedTweets {
		if ref.Type == "replied_to" {
			return true
		}
	}
	return false
}

// ProcessedTweet is a tweet that passed selection, annotated with its score and
// reply-processing state. SelectionScore is assigned once, at selection time,
// and never recomputed.
type ProcessedTweet struct {
	Tweet

	SelectionScore      float64   `json:"selection_score"` // 0-100
	GeneratedReply      string    `json:"generated_reply,omitempty"`
	ReplyPosted         bool      `json:"reply_posted"`
	ProcessingTimestamp time.Time `json:"processing_timestamp"`
	ErrorMessage        string    `json:"error_message,omitempty"`
	ReplyID             string    `json:"reply_id,omitempty"`
}

// SafetyCheckResult is the outcome of a content safety check.
type SafetyCheckResult struct {
	IsSafe     bool    `json:"is_safe"`
	Reason     string  `json:"reason,omitempty"`
	Confidence float64 `json:"confidence"` // 0.0-1.0
}

// ProcessingResult summarizes one reply run.
type ProcessingResult struct {
	RunID            string           `json:"run_id"`
	StartTime        time.Time        `json:"start_time"`
	EndTime          time.Time        `json:"end_time"`
	TweetsFetched    int              `json:"tweets_fetched"`
	TweetsProcessed  int              `json:"tweets_processed"`
	RepliesGenerated int              `json:"replies_generated"`
	RepliesPosted    int              `json:"replies_posted"`
	Errors           []string         `json:"errors,omitempty"`
	ProcessedTweets  []ProcessedTweet `json:"processed_tweets,omitempty"`
}

// Duration returns the wall-clock duration of the run.
func (r ProcessingResult) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// SuccessRate returns posted replies as a percentage of processed tweets.
func (r ProcessingResult) SuccessRate() float64 {
	if r.TweetsProcessed == 0 {
		return 0
	}
	return float64(r.RepliesPosted) / float64(r.TweetsProcessed) * 100
}
