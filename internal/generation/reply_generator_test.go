package generation

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/replyloop/x-reply-bot/internal/config"
	"github.com/replyloop/x-reply-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockCompleter is a mock implementation of the model API
type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Generate(prompt, model string, temperature float64, maxTokens int) (string, error) {
	args := m.Called(prompt, model, temperature, maxTokens)
	return args.String(0), args.Error(1)
}

func testReplyConfig() config.ReplyConfig {
	return config.ReplyConfig{
		BasePrompt:     "write an impactful reply to the following so that it teaches something new and contrary to the status-quo views: {tweet_content}",
		MaxReplyLength: 280,
		Temperature:    0.7,
		Model:          "llama-3.1-sonar-small-128k-online",
	}
}

func testTweet() models.ProcessedTweet {
	return models.ProcessedTweet{
		Tweet: models.Tweet{
			ID:             "t1",
			Text:           "Everyone says microservices are the answer, but are they really?",
			AuthorID:       "a1",
			AuthorUsername: "some_dev",
			AuthorName:     "Some Dev",
			CreatedAt:      time.Now().Add(-30 * time.Minute),
			PublicMetrics:  models.PublicMetrics{LikeCount: 120, RetweetCount: 30},
			ContextAnnotations: []models.ContextAnnotation{
				{Entity: map[string]string{"name": "Software"}},
			},
		},
		SelectionScore: 72.5,
	}
}

func TestGenerateReply_Success(t *testing.T) {
	completer := &MockCompleter{}
	completer.On("Generate", mock.Anything, "llama-3.1-sonar-small-128k-online", 0.7, 280).
		Return("Most teams adopting microservices trade one bottleneck for a distributed one", nil)

	g := NewReplyGenerator(completer, testReplyConfig())

	reply, err := g.GenerateReply(testTweet())

	assert.NoError(t, err)
	assert.Equal(t, "Most teams adopting microservices trade one bottleneck for a distributed one.", reply)
	completer.AssertExpectations(t)
}

func TestGenerateReply_PromptContainsContext(t *testing.T) {
	completer := &MockCompleter{}
	var captured string
	completer.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.String(0) }).
		Return("A reasonable reply that is definitely long enough to pass checks", nil)

	g := NewReplyGenerator(completer, testReplyConfig())

	_, err := g.GenerateReply(testTweet())

	assert.NoError(t, err)
	assert.Contains(t, captured, "Topics: Software")
	assert.Contains(t, captured, "High engagement tweet")
	assert.Contains(t, captured, "Recent tweet")
	assert.Contains(t, captured, "Author: @some_dev")
	assert.Contains(t, captured, "Everyone says microservices are the answer")
	assert.NotContains(t, captured, "{tweet_content}")
}

func TestGenerateReply_CompleterError(t *testing.T) {
	completer := &MockCompleter{}
	completer.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("api down"))

	g := NewReplyGenerator(completer, testReplyConfig())

	_, err := g.GenerateReply(testTweet())
	assert.Error(t, err)
}

func TestGenerateReply_UnsafeContentRejected(t *testing.T) {
	completer := &MockCompleter{}
	completer.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("I hate everything about this and everyone involved in it", nil)

	g := NewReplyGenerator(completer, testReplyConfig())

	_, err := g.GenerateReply(testTweet())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "safety check")
}

func TestGenerateReply_EmptyModelOutput(t *testing.T) {
	completer := &MockCompleter{}
	completer.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("   ", nil)

	g := NewReplyGenerator(completer, testReplyConfig())

	_, err := g.GenerateReply(testTweet())
	assert.Error(t, err)
}

func TestGenerateReply_TruncatesOnRunes(t *testing.T) {
	completer := &MockCompleter{}
	completer.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(strings.Repeat("€", 100), nil)

	cfg := testReplyConfig()
	cfg.MaxReplyLength = 40
	g := NewReplyGenerator(completer, cfg)

	reply, err := g.GenerateReply(testTweet())

	assert.NoError(t, err)
	assert.True(t, utf8.ValidString(reply), "truncation must not split a multibyte character")
	assert.Equal(t, 40, utf8.RuneCountInString(reply))
	assert.Equal(t, strings.Repeat("€", 37)+"...", reply)
}

func TestGenerateReply_TinyMaxLengthDoesNotPanic(t *testing.T) {
	completer := &MockCompleter{}
	completer.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("Short limits still have to be handled without blowing up", nil)

	cfg := testReplyConfig()
	cfg.MaxReplyLength = 2
	g := NewReplyGenerator(completer, cfg)

	assert.NotPanics(t, func() {
		// A two-character reply then fails the safety filter's minimum length,
		// which is the expected outcome for a limit this small.
		_, err := g.GenerateReply(testTweet())
		assert.Error(t, err)
	})
}

func TestCleanReply(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{
			name:     "Strips wrapping quotes",
			in:       `"Curiosity beats certainty in most debugging sessions"`,
			expected: "Curiosity beats certainty in most debugging sessions.",
		},
		{
			name:     "Strips AI prefix",
			in:       "Here's a reply: the interesting part is the cache behavior.",
			expected: "The interesting part is the cache behavior.",
		},
		{
			name:     "Collapses punctuation runs",
			in:       "This is wild!!!! Really????",
			expected: "This is wild!! Really??",
		},
		{
			name:     "Collapses whitespace and capitalizes",
			in:       "lowercase   start with    gaps",
			expected: "Lowercase start with gaps.",
		},
		{
			name:     "Keeps existing terminal punctuation",
			in:       "Already a sentence.",
			expected: "Already a sentence.",
		},
		{
			name:     "Empty input",
			in:       "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cleanReply(tt.in))
		})
	}
}
