package twitter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/replyloop/x-reply-bot/internal/models"
	"github.com/replyloop/x-reply-bot/internal/ratelimit"
	"github.com/sirupsen/logrus"
)

const baseURL = "https://api.twitter.com/2"

const tweetFields = "created_at,author_id,public_metrics,referenced_tweets,context_annotations,lang"

// Client is a Twitter v2 API client. Every request goes through the rate
// limiter's guarded-call helpers; the client itself does no retrying.
type Client struct {
	bearerToken string
	limiter     *ratelimit.Limiter
	client      *resty.Client
}

type timelineResponse struct {
	Data     []apiTweet `json:"data"`
	Includes struct {
		Users []apiUser `json:"users"`
	} `json:"includes"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

type apiTweet struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	AuthorID      string `json:"author_id"`
	CreatedAt     string `json:"created_at"`
	Lang          string `json:"lang"`
	PublicMetrics struct {
		RetweetCount int `json:"retweet_count"`
		LikeCount    int `json:"like_count"`
		ReplyCount   int `json:"reply_count"`
		QuoteCount   int `json:"quote_count"`
	} `json:"public_metrics"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
	ContextAnnotations []struct {
		Domain struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"domain"`
		Entity struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"entity"`
	} `json:"context_annotations"`
}

type apiUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type meResponse struct {
	Data apiUser `json:"data"`
}

type postReplyResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// NewClient creates a Twitter client.
func NewClient(bearerToken string, limiter *ratelimit.Limiter) *Client {
	return &Client{
		bearerToken: bearerToken,
		limiter:     limiter,
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30*time.Second).
			SetHeader("User-Agent", "X-Reply-Bot/1.0").
			SetAuthToken(bearerToken),
	}
}

// VerifyCredentials checks that the bearer token is valid.
func (c *Client) VerifyCredentials() bool {
	var me meResponse

	err := c.limiter.TwitterReadCall(func() error {
		resp, err := c.client.R().Get("/users/me")
		if err != nil {
			return err
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("twitter API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
		}
		return json.Unmarshal(resp.Body(), &me)
	})

	if err != nil {
		logrus.Errorf("Twitter credential verification failed: %v", err)
		return false
	}

	logrus.Infof("Twitter credentials verified for @%s", me.Data.Username)
	return true
}

// GetHomeTimeline fetches the authenticated user's reverse-chronological home
// timeline.
func (c *Client) GetHomeTimeline(maxResults int) ([]models.Tweet, error) {
	me, err := c.currentUser()
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/users/%s/timelines/reverse_chronological", me.ID)
	return c.fetchTimeline(path, maxResults, nil)
}

// GetUserTimeline fetches the authenticated user's own timeline, optionally
// excluding replies and retweets server-side.
func (c *Client) GetUserTimeline(maxResults int, excludeReplies, excludeRetweets bool) ([]models.Tweet, error) {
	me, err := c.currentUser()
	if err != nil {
		return nil, err
	}

	var excludes []string
	if excludeReplies {
		excludes = append(excludes, "replies")
	}
	if excludeRetweets {
		excludes = append(excludes, "retweets")
	}

	params := map[string]string{}
	if len(excludes) > 0 {
		params["exclude"] = strings.Join(excludes, ",")
	}

	path := fmt.Sprintf("/users/%s/tweets", me.ID)
	return c.fetchTimeline(path, maxResults, params)
}

// PostReply posts text as a reply to the given tweet and returns the new
// reply's ID.
func (c *Client) PostReply(tweetID, text string) (string, error) {
	body := map[string]interface{}{
		"text": text,
		"reply": map[string]string{
			"in_reply_to_tweet_id": tweetID,
		},
	}

	var posted postReplyResponse

	err := c.limiter.TwitterWriteCall(func() error {
		resp, err := c.client.R().
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			Post("/tweets")
		if err != nil {
			return err
		}

		if resp.StatusCode() == 429 {
			logrus.Warn("Twitter API rate limit hit while posting reply")
			return fmt.Errorf("twitter API rate limited (429)")
		}

		if resp.StatusCode() != 201 {
			return fmt.Errorf("twitter API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
		}

		return json.Unmarshal(resp.Body(), &posted)
	})

	if err != nil {
		return "", fmt.Errorf("failed to post reply to tweet %s: %w", tweetID, err)
	}

	logrus.Infof("Posted reply %s to tweet %s", posted.Data.ID, tweetID)
	return posted.Data.ID, nil
}

func (c *Client) currentUser() (apiUser, error) {
	var me meResponse

	err := c.limiter.TwitterReadCall(func() error {
		resp, err := c.client.R().Get("/users/me")
		if err != nil {
			return err
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("twitter API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
		}
		return json.Unmarshal(resp.Body(), &me)
	})

	if err != nil {
		return apiUser{}, fmt.Errorf("failed to resolve authenticated user: %w", err)
	}

	return me.Data, nil
}

func (c *Client) fetchTimeline(path string, maxResults int, extraParams map[string]string) ([]models.Tweet, error) {
	if maxResults < 5 {
		maxResults = 5
	}
	if maxResults > 100 {
		maxResults = 100
	}

	params := map[string]string{
		"max_results":  fmt.Sprintf("%d", maxResults),
		"tweet.fields": tweetFields,
		"expansions":   "author_id",
		"user.fields":  "name,username",
	}
	for k, v := range extraParams {
		params[k] = v
	}

	var timeline timelineResponse

	err := c.limiter.TwitterReadCall(func() error {
		resp, err := c.client.R().
			SetQueryParams(params).
			Get(path)
		if err != nil {
			return err
		}

		if resp.StatusCode() == 429 {
			logrus.Warn("Twitter API rate limit hit while fetching timeline")
			return fmt.Errorf("twitter API rate limited (429)")
		}

		if resp.StatusCode() != 200 {
			return fmt.Errorf("twitter API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
		}

		return json.Unmarshal(resp.Body(), &timeline)
	})

	if err != nil {
		return nil, fmt.Errorf("failed to fetch timeline: %w", err)
	}

	tweets := convertTweets(timeline)
	logrus.Infof("Fetched %d tweets from %s", len(tweets), path)
	return tweets, nil
}

// convertTweets maps API payloads onto the internal tweet model, resolving
// author expansions. Tweets with unparseable timestamps are skipped.
func convertTweets(timeline timelineResponse) []models.Tweet {
	users := make(map[string]apiUser, len(timeline.Includes.Users))
	for _, u := range timeline.Includes.Users {
		users[u.ID] = u
	}

	var tweets []models.Tweet
	for _, raw := range timeline.Data {
		createdAt, err := time.Parse(time.RFC3339, raw.CreatedAt)
		if err != nil {
			logrus.Errorf("Failed to parse tweet timestamp %q: %v", raw.CreatedAt, err)
			continue
		}

		tweet := models.Tweet{
			ID:        raw.ID,
			Text:      raw.Text,
			AuthorID:  raw.AuthorID,
			CreatedAt: createdAt,
			Lang:      raw.Lang,
			PublicMetrics: models.PublicMetrics{
				LikeCount:    raw.PublicMetrics.LikeCount,
				RetweetCount: raw.PublicMetrics.RetweetCount,
				ReplyCount:   raw.PublicMetrics.ReplyCount,
				QuoteCount:   raw.PublicMetrics.QuoteCount,
			},
		}

		if author, ok := users[raw.AuthorID]; ok {
			tweet.AuthorUsername = author.Username
			tweet.AuthorName = author.Name
		}

		for _, ref := range raw.ReferencedTweets {
			tweet.ReferencedTweets = append(tweet.ReferencedTweets, models.ReferencedTweet{
				Type: ref.Type,
				ID:   ref.ID,
			})
		}

		for _, ann := range raw.ContextAnnotations {
			tweet.ContextAnnotations = append(tweet.ContextAnnotations, models.ContextAnnotation{
				Domain: map[string]string{"id": ann.Domain.ID, "name": ann.Domain.Name},
				Entity: map[string]string{"id": ann.Entity.ID, "name": ann.Entity.Name},
			})
		}

		tweets = append(tweets, tweet)
	}

	return tweets
}
