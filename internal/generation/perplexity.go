package generation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/replyloop/x-reply-bot/internal/ratelimit"
	"github.com/sirupsen/logrus"
)

const perplexityBaseURL = "https://api.perplexity.ai"

const systemPrompt = "You are a helpful assistant that provides educational and " +
	"contrarian perspectives. Your responses should be thoughtful, informative, " +
	"and challenge conventional thinking while remaining respectful and " +
	"constructive. Keep responses under 280 characters for social media. " +
	"Use current information from web search when relevant."

// PerplexityClient calls the Perplexity chat-completions API. All requests go
// through the rate limiter's generation guard.
type PerplexityClient struct {
	limiter *ratelimit.Limiter
	client  *resty.Client
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewPerplexityClient creates a Perplexity API client.
func NewPerplexityClient(apiKey string, limiter *ratelimit.Limiter) *PerplexityClient {
	return &PerplexityClient{
		limiter: limiter,
		client: resty.New().
			SetBaseURL(perplexityBaseURL).
			SetTimeout(60*time.Second).
			SetHeader("User-Agent", "X-Reply-Bot/1.0").
			SetHeader("Content-Type", "application/json").
			SetAuthToken(apiKey),
	}
}

// Generate sends a chat-completion request and returns the model's text.
func (p *PerplexityClient) Generate(prompt, model string, temperature float64, maxTokens int) (string, error) {
	request := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	var parsed chatResponse

	err := p.limiter.GenerationCall(func() error {
		resp, err := p.client.R().
			SetBody(request).
			Post("/chat/completions")
		if err != nil {
			return err
		}

		if resp.StatusCode() == 429 {
			logrus.Warn("Perplexity API rate limit hit")
			return fmt.Errorf("perplexity API rate limited (429)")
		}

		if resp.StatusCode() != 200 {
			return fmt.Errorf("perplexity API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
		}

		return json.Unmarshal(resp.Body(), &parsed)
	})

	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("perplexity API returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

// TestConnection verifies the API key with a minimal request.
func (p *PerplexityClient) TestConnection(model string) bool {
	_, err := p.Generate("Reply with the single word: ok", model, 0, 10)
	if err != nil {
		logrus.Errorf("Perplexity connection test failed: %v", err)
		return false
	}
	return true
}
