package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"github.com/replyloop/x-reply-bot/internal/config"
	"github.com/replyloop/x-reply-bot/internal/models"
)

// Service sends run reports and alerts via Teams and email, depending on
// which channels are configured.
type Service struct {
	config *config.Config
	client *resty.Client
}

var _ NotificationInterface = (*Service)(nil)

// TeamsMessage is a Microsoft Teams MessageCard payload.
type TeamsMessage struct {
	Type     string         `json:"@type"`
	Context  string         `json:"@context"`
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	Sections []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	ActivityText     string      `json:"activityText,omitempty"`
	Facts            []TeamsFact `json:"facts,omitempty"`
	Markdown         bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
}

// SendRunReport sends the run summary to every configured channel. A
// failure on one channel does not stop the others.
func (s *Service) SendRunReport(result *models.ProcessingResult) error {
	var errors []string

	if s.config.TeamsWebhookURL != "" {
		if err := s.sendToTeams(result); err != nil {
			logrus.Errorf("Failed to send Teams notification: %v", err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Info("Successfully sent run report to Teams")
		}
	}

	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(result); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Info("Successfully sent run report via email")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (s *Service) sendToTeams(result *models.ProcessingResult) error {
	message := s.buildTeamsMessage(result)

	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func (s *Service) buildTeamsMessage(result *models.ProcessingResult) *TeamsMessage {
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   fmt.Sprintf("Reply Run %s", result.RunID),
		Text:    fmt.Sprintf("Posted %d of %d selected tweets", result.RepliesPosted, result.TweetsProcessed),
	}

	facts := []TeamsFact{
		{Name: "Tweets Fetched", Value: fmt.Sprintf("%d", result.TweetsFetched)},
		{Name: "Tweets Selected", Value: fmt.Sprintf("%d", result.TweetsProcessed)},
		{Name: "Replies Generated", Value: fmt.Sprintf("%d", result.RepliesGenerated)},
		{Name: "Replies Posted", Value: fmt.Sprintf("%d", result.RepliesPosted)},
		{Name: "Success Rate", Value: fmt.Sprintf("%.0f%%", result.SuccessRate())},
		{Name: "Duration", Value: result.Duration().Round(time.Second).String()},
	}

	message.Sections = append(message.Sections, TeamsSection{
		ActivityTitle: "Summary",
		Facts:         facts,
		Markdown:      true,
	})

	if len(result.ProcessedTweets) > 0 {
		var lines []string
		for _, tweet := range result.ProcessedTweets {
			status := "skipped"
			if tweet.ReplyPosted {
				status = "posted"
			} else if tweet.ErrorMessage != "" {
				status = "failed"
			}
			lines = append(lines, fmt.Sprintf("**@%s** (score %.1f, %s): %s",
				tweet.AuthorUsername, tweet.SelectionScore, status, truncate(tweet.Text, 120)))
		}

		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Processed Tweets",
			ActivityText:  strings.Join(lines, "\n\n"),
			Markdown:      true,
		})
	}

	if len(result.Errors) > 0 {
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Errors",
			ActivityText:  strings.Join(result.Errors, "\n\n"),
			Markdown:      true,
		})
	}

	return message
}

func (s *Service) sendEmail(result *models.ProcessingResult) error {
	subject := fmt.Sprintf("Reply Run %s (%d posted)", result.RunID, result.RepliesPosted)

	htmlBody, err := s.buildEmailHTML(result)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	textBody := s.buildEmailText(result)

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", textBody)
	m.AddAlternative("text/html", htmlBody)

	d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func (s *Service) buildEmailHTML(result *models.ProcessingResult) (string, error) {
	tmpl := `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Reply Run Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #1da1f2; color: white; padding: 20px; border-radius: 5px; }
        .summary { background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px; }
        .tweet { border-left: 4px solid #1da1f2; padding: 10px; margin: 10px 0; background-color: #fafafa; }
        .tweet-meta { color: #666; font-size: 0.9em; }
        .posted { border-left-color: #107c10; }
        .failed { border-left-color: #d13438; }
        .errors { color: #d13438; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Reply Run Report</h1>
        <p>Run {{.RunID}} finished {{.EndTime.Format "January 2, 2006 at 3:04 PM UTC"}}</p>
    </div>

    <div class="summary">
        <h2>Summary</h2>
        <p><strong>Tweets Fetched:</strong> {{.TweetsFetched}}</p>
        <p><strong>Tweets Selected:</strong> {{.TweetsProcessed}}</p>
        <p><strong>Replies Generated:</strong> {{.RepliesGenerated}}</p>
        <p><strong>Replies Posted:</strong> {{.RepliesPosted}}</p>
    </div>

    {{if .ProcessedTweets}}
    <h2>Processed Tweets</h2>
    {{range .ProcessedTweets}}
        <div class="tweet {{if .ReplyPosted}}posted{{else if .ErrorMessage}}failed{{end}}">
            <div class="tweet-meta">
                @{{.AuthorUsername}} | score {{printf "%.1f" .SelectionScore}} | {{.CreatedAt.Format "Jan 2, 2006 15:04"}}
            </div>
            <p>{{truncate .Text 200}}</p>
            {{if .GeneratedReply}}<p><em>Reply: {{.GeneratedReply}}</em></p>{{end}}
            {{if .ErrorMessage}}<p class="errors">{{.ErrorMessage}}</p>{{end}}
        </div>
    {{end}}
    {{end}}

    {{if .Errors}}
    <h2 class="errors">Errors</h2>
    {{range .Errors}}<p class="errors">{{.}}</p>{{end}}
    {{end}}

    <hr>
    <p><small>This report was generated automatically by the reply bot.</small></p>
</body>
</html>
`

	t := template.New("email").Funcs(template.FuncMap{
		"truncate": truncate,
	})

	t, err := t.Parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, result); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *Service) buildEmailText(result *models.ProcessingResult) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("Reply Run Report - %s\n", result.RunID))
	text.WriteString(fmt.Sprintf("Finished: %s\n\n", result.EndTime.Format("2006-01-02 15:04:05 UTC")))

	text.WriteString("SUMMARY\n")
	text.WriteString("=======\n")
	text.WriteString(fmt.Sprintf("Tweets Fetched: %d\n", result.TweetsFetched))
	text.WriteString(fmt.Sprintf("Tweets Selected: %d\n", result.TweetsProcessed))
	text.WriteString(fmt.Sprintf("Replies Generated: %d\n", result.RepliesGenerated))
	text.WriteString(fmt.Sprintf("Replies Posted: %d\n", result.RepliesPosted))
	text.WriteString(fmt.Sprintf("Success Rate: %.0f%%\n", result.SuccessRate()))

	if len(result.ProcessedTweets) > 0 {
		text.WriteString("\nPROCESSED TWEETS\n")
		text.WriteString("================\n")

		for i, tweet := range result.ProcessedTweets {
			text.WriteString(fmt.Sprintf("\n%d. @%s (score %.1f)\n", i+1, tweet.AuthorUsername, tweet.SelectionScore))
			text.WriteString(fmt.Sprintf("   Tweet: %s\n", truncate(tweet.Text, 200)))
			if tweet.GeneratedReply != "" {
				text.WriteString(fmt.Sprintf("   Reply: %s\n", tweet.GeneratedReply))
			}
			if tweet.ReplyPosted {
				text.WriteString(fmt.Sprintf("   Posted: %s\n", tweet.ReplyID))
			}
			if tweet.ErrorMessage != "" {
				text.WriteString(fmt.Sprintf("   Error: %s\n", tweet.ErrorMessage))
			}
		}
	}

	if len(result.Errors) > 0 {
		text.WriteString("\nERRORS\n")
		text.WriteString("======\n")
		for _, e := range result.Errors {
			text.WriteString(fmt.Sprintf("- %s\n", e))
		}
	}

	text.WriteString("\n---\nThis report was generated automatically by the reply bot.\n")

	return text.String()
}

// SendAlert sends an urgent notification to Teams. Used for conditions that
// should not wait for the next run report, like a circuit breaker opening.
func (s *Service) SendAlert(title, message string) error {
	if s.config.TeamsWebhookURL == "" {
		logrus.Infof("Alert (no channel configured): %s - %s", title, message)
		return nil
	}

	payload := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   fmt.Sprintf("ALERT: %s", title),
		Text:    message,
	}

	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length] + "..."
}
