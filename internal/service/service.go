package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/replyloop/x-reply-bot/internal/config"
	"github.com/replyloop/x-reply-bot/internal/generation"
	"github.com/replyloop/x-reply-bot/internal/models"
	"github.com/replyloop/x-reply-bot/internal/notifications"
	"github.com/replyloop/x-reply-bot/internal/ratelimit"
	"github.com/replyloop/x-reply-bot/internal/selection"
	"github.com/replyloop/x-reply-bot/internal/storage"
)

// How far back the dedup window reaches. A tweet replied to inside this
// window is never picked up again.
const dedupWindow = 24 * time.Hour

// Pause between consecutive posted replies so the account does not burst.
const postPause = 2 * time.Second

// TwitterAPI is the subset of the Twitter client the orchestrator uses.
type TwitterAPI interface {
	VerifyCredentials() bool
	GetHomeTimeline(maxResults int) ([]models.Tweet, error)
	GetUserTimeline(maxResults int, excludeReplies, excludeRetweets bool) ([]models.Tweet, error)
	PostReply(tweetID, text string) (string, error)
}

// Service orchestrates one reply cycle: fetch timeline, dedup against
// history, select tweets, generate and post replies, persist and report.
type Service struct {
	config    *config.Config
	twitter   TwitterAPI
	generator generation.Generator
	selector  *selection.Selector
	history   *storage.HistoryStore
	notifier  notifications.NotificationInterface
	limiter   *ratelimit.Limiter

	metrics *Metrics
	mu      sync.RWMutex
	running bool
	now     func() time.Time
}

// Metrics holds run counters exposed on the metrics endpoint.
type Metrics struct {
	TotalRuns          int       `json:"total_runs"`
	TotalRepliesPosted int       `json:"total_replies_posted"`
	LastRunID          string    `json:"last_run_id"`
	LastRun            time.Time `json:"last_run"`
	LastRunDuration    string    `json:"last_run_duration"`
	LastRunErrors      int       `json:"last_run_errors"`
}

// NewService creates a new reply service
func NewService(cfg *config.Config, twitter TwitterAPI, generator generation.Generator, history *storage.HistoryStore, notifier notifications.NotificationInterface, limiter *ratelimit.Limiter) *Service {
	return &Service{
		config:    cfg,
		twitter:   twitter,
		generator: generator,
		selector:  selection.NewSelector(cfg.Selection),
		history:   history,
		notifier:  notifier,
		limiter:   limiter,
		metrics:   &Metrics{},
		now:       time.Now,
	}
}

// RunReplyCycle performs the main reply task. Only one cycle runs at a
// time; a trigger while a cycle is in flight returns immediately.
func (s *Service) RunReplyCycle(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logrus.Warn("Reply cycle already in progress, skipping")
		return nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := s.now()
	runID := "run-" + uuid.New().String()[:8]
	log := logrus.WithField("run_id", runID)
	log.Info("Starting reply cycle")

	if s.config.DryRun {
		log.Info("Dry run mode: replies will not be posted")
	}

	result := models.ProcessingResult{
		RunID:     runID,
		StartTime: start,
	}

	if !s.twitter.VerifyCredentials() {
		err := fmt.Errorf("twitter credential verification failed")
		s.finishRun(&result, err)
		return err
	}

	tweets, err := s.fetchCandidates(log)
	if err != nil {
		s.finishRun(&result, err)
		s.alertIfCircuitOpen(err)
		return err
	}
	result.TweetsFetched = len(tweets)
	log.Infof("Fetched %d candidate tweets", len(tweets))

	tweets, err = s.dedup(tweets, log)
	if err != nil {
		s.finishRun(&result, err)
		return err
	}

	selected := s.selector.SelectTweets(tweets)
	result.TweetsProcessed = len(selected)
	log.Infof("Selected %d tweets for replies", len(selected))

	for i := range selected {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, "run cancelled")
			break
		}

		s.processTweet(&selected[i], &result, log)

		if i < len(selected)-1 && !s.config.DryRun {
			select {
			case <-ctx.Done():
			case <-time.After(postPause):
			}
		}
	}
	result.ProcessedTweets = selected

	if err := s.history.AppendProcessed(selected); err != nil {
		log.Errorf("Failed to append history: %v", err)
		result.Errors = append(result.Errors, fmt.Sprintf("history: %v", err))
	}

	s.finishRun(&result, nil)

	if err := s.notifier.SendRunReport(&result); err != nil {
		log.Errorf("Failed to send run report: %v", err)
	}

	log.Infof("Reply cycle completed in %v: %d/%d replies posted",
		result.Duration().Round(time.Millisecond), result.RepliesPosted, result.TweetsProcessed)
	return nil
}

// fetchCandidates reads the home timeline, falling back to the account's
// own timeline when the home timeline is unavailable.
func (s *Service) fetchCandidates(log *logrus.Entry) ([]models.Tweet, error) {
	fetchCount := s.config.Selection.MaxTweetsPerRun * 4
	if fetchCount < 20 {
		fetchCount = 20
	}
	if fetchCount > 100 {
		fetchCount = 100
	}

	tweets, err := s.twitter.GetHomeTimeline(fetchCount)
	if err == nil {
		return tweets, nil
	}
	log.Warnf("Home timeline unavailable, falling back to user timeline: %v", err)

	tweets, fallbackErr := s.twitter.GetUserTimeline(fetchCount, s.config.Selection.ExcludeReplies, s.config.Selection.ExcludeRetweets)
	if fallbackErr != nil {
		return nil, fmt.Errorf("failed to fetch timeline: %w", err)
	}
	return tweets, nil
}

func (s *Service) dedup(tweets []models.Tweet, log *logrus.Entry) ([]models.Tweet, error) {
	seen, err := s.history.RecentlyProcessedIDs(dedupWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load processed history: %w", err)
	}
	if len(seen) == 0 {
		return tweets, nil
	}

	var fresh []models.Tweet
	for _, tweet := range tweets {
		if seen[tweet.ID] {
			continue
		}
		fresh = append(fresh, tweet)
	}
	if dropped := len(tweets) - len(fresh); dropped > 0 {
		log.Infof("Skipping %d already-processed tweets", dropped)
	}
	return fresh, nil
}

// processTweet generates a reply for one selected tweet and posts it unless
// dry run is enabled. Failures are recorded on the tweet and the run keeps
// going.
func (s *Service) processTweet(tweet *models.ProcessedTweet, result *models.ProcessingResult, log *logrus.Entry) {
	reply, err := s.generator.GenerateReply(*tweet)
	if err != nil {
		log.Warnf("Reply generation failed for tweet %s: %v", tweet.ID, err)
		tweet.ErrorMessage = fmt.Sprintf("generation: %v", err)
		result.Errors = append(result.Errors, fmt.Sprintf("tweet %s: %v", tweet.ID, err))
		return
	}
	tweet.GeneratedReply = reply
	result.RepliesGenerated++

	if s.config.DryRun {
		tweet.ReplyPosted = true
		tweet.ReplyID = "dryrun-" + uuid.New().String()[:8]
		result.RepliesPosted++
		log.Infof("Dry run: would reply to @%s with %q", tweet.AuthorUsername, reply)
		return
	}

	replyID, err := s.twitter.PostReply(tweet.ID, reply)
	if err != nil {
		log.Errorf("Failed to post reply to tweet %s: %v", tweet.ID, err)
		tweet.ErrorMessage = fmt.Sprintf("post: %v", err)
		result.Errors = append(result.Errors, fmt.Sprintf("tweet %s: %v", tweet.ID, err))
		s.alertIfCircuitOpen(err)
		return
	}

	tweet.ReplyPosted = true
	tweet.ReplyID = replyID
	result.RepliesPosted++
	log.Infof("Posted reply %s to @%s", replyID, tweet.AuthorUsername)
}

// finishRun stamps timestamps, persists the run result and updates metrics.
func (s *Service) finishRun(result *models.ProcessingResult, fatal error) {
	if fatal != nil {
		result.Errors = append(result.Errors, fatal.Error())
	}
	result.EndTime = s.now()
	for i := range result.ProcessedTweets {
		if result.ProcessedTweets[i].ProcessingTimestamp.IsZero() {
			result.ProcessedTweets[i].ProcessingTimestamp = result.EndTime
		}
	}

	if err := s.history.SaveRun(*result); err != nil {
		logrus.Errorf("Failed to persist run %s: %v", result.RunID, err)
	}

	s.updateMetrics(result)
}

func (s *Service) updateMetrics(result *models.ProcessingResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.TotalRuns++
	s.metrics.TotalRepliesPosted += result.RepliesPosted
	s.metrics.LastRunID = result.RunID
	s.metrics.LastRun = result.EndTime
	s.metrics.LastRunDuration = result.Duration().String()
	s.metrics.LastRunErrors = len(result.Errors)
}

func (s *Service) alertIfCircuitOpen(err error) {
	if !errors.Is(err, ratelimit.ErrCircuitOpen) {
		return
	}
	if alertErr := s.notifier.SendAlert("Circuit breaker open", err.Error()); alertErr != nil {
		logrus.Errorf("Failed to send circuit breaker alert: %v", alertErr)
	}
}

// Status describes the service for the status endpoint.
type Status struct {
	Running    bool                     `json:"running"`
	DryRun     bool                     `json:"dry_run"`
	Schedule   string                   `json:"schedule"`
	Metrics    Metrics                  `json:"metrics"`
	RateLimits ratelimit.Status         `json:"rate_limits"`
	LastRun    *models.ProcessingResult `json:"last_run,omitempty"`
}

// Status returns a snapshot of the service state, including the last
// persisted run if one exists.
func (s *Service) Status() Status {
	s.mu.RLock()
	running := s.running
	metrics := *s.metrics
	s.mu.RUnlock()

	status := Status{
		Running:    running,
		DryRun:     s.config.DryRun,
		Schedule:   s.config.ReplySchedule,
		Metrics:    metrics,
		RateLimits: s.limiter.GetStatus(),
	}

	if last, err := s.history.LastRun(); err == nil && last != nil {
		// Trim the per-tweet detail out of the status payload.
		last.ProcessedTweets = nil
		status.LastRun = last
	}

	return status
}

// HealthCheck reports whether the service can reach its upstream APIs.
// A rate-limited state is not unhealthy, only an open circuit is.
func (s *Service) HealthCheck() error {
	rl := s.limiter.GetStatus()

	var problems []string
	if rl.TwitterRead.CircuitState == ratelimit.StateOpen {
		problems = append(problems, "twitter circuit breaker open")
	}
	if rl.Generation.CircuitState == ratelimit.StateOpen {
		problems = append(problems, "generation circuit breaker open")
	}
	if len(problems) > 0 {
		return fmt.Errorf("unhealthy: %s", strings.Join(problems, "; "))
	}
	return nil
}

// GetMetrics returns current metrics as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}
