package selection

import (
	"math"

	"github.com/replyloop/x-reply-bot/internal/models"
)

// AgeStats summarizes candidate ages in hours.
type AgeStats struct {
	MinHours float64 `json:"min_hours"`
	MaxHours float64 `json:"max_hours"`
	AvgHours float64 `json:"avg_hours"`
}

// EngagementStats summarizes candidate total engagement.
type EngagementStats struct {
	Min int     `json:"min"`
	Max int     `json:"max"`
	Avg float64 `json:"avg"`
}

// FilteredOutCounts tallies candidates that would fail the hard filters.
type FilteredOutCounts struct {
	TooOld        int `json:"too_old"`
	LowEngagement int `json:"low_engagement"`
}

// Stats is a diagnostic summary of a candidate batch. It has no effect on
// selection itself.
type Stats struct {
	TotalTweets          int               `json:"total_tweets"`
	AgeStats             AgeStats          `json:"age_stats"`
	EngagementStats      EngagementStats   `json:"engagement_stats"`
	LanguageDistribution map[string]int    `json:"language_distribution"`
	FilteredOut          FilteredOutCounts `json:"filtered_out"`
}

// SelectionStats computes diagnostics for a candidate batch.
func (s *Selector) SelectionStats(tweets []models.Tweet) Stats {
	stats := Stats{TotalTweets: len(tweets)}
	if len(tweets) == 0 {
		return stats
	}

	now := s.now()
	stats.LanguageDistribution = make(map[string]int)
	stats.AgeStats.MinHours = math.MaxFloat64

	ageSum := 0.0
	engagementSum := 0
	stats.EngagementStats.Min = math.MaxInt

	for _, tweet := range tweets {
		age := now.Sub(tweet.CreatedAt).Hours()
		ageSum += age
		stats.AgeStats.MinHours = math.Min(stats.AgeStats.MinHours, age)
		stats.AgeStats.MaxHours = math.Max(stats.AgeStats.MaxHours, age)
		if age > float64(s.config.MaxTweetAgeHours) {
			stats.FilteredOut.TooOld++
		}

		engagement := tweet.PublicMetrics.Total()
		engagementSum += engagement
		if engagement < stats.EngagementStats.Min {
			stats.EngagementStats.Min = engagement
		}
		if engagement > stats.EngagementStats.Max {
			stats.EngagementStats.Max = engagement
		}
		if engagement < s.config.MinEngagementThreshold {
			stats.FilteredOut.LowEngagement++
		}

		lang := tweet.Lang
		if lang == "" {
			lang = "unknown"
		}
		stats.LanguageDistribution[lang]++
	}

	stats.AgeStats.AvgHours = ageSum / float64(len(tweets))
	stats.EngagementStats.Avg = float64(engagementSum) / float64(len(tweets))

	return stats
}
