package notifications

import "github.com/replyloop/x-reply-bot/internal/models"

// NotificationInterface defines the contract for notification services
type NotificationInterface interface {
	SendRunReport(result *models.ProcessingResult) error
	SendAlert(title, message string) error
}
