package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/replyloop/x-reply-bot/internal/config"
	"github.com/replyloop/x-reply-bot/internal/service"
)

// Service handles scheduling of reply cycles
type Service struct {
	config       *config.Config
	replyService *service.Service
	cron         *cron.Cron
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, replyService *service.Service) *Service {
	return &Service{
		config:       cfg,
		replyService: replyService,
		cron:         cron.New(cron.WithSeconds()),
	}
}

// Start begins the scheduled reply cycles. REPLY_SCHEDULE accepts the
// "hourly" and "daily" shorthands or a six-field cron expression.
func (s *Service) Start() error {
	cronExpression := resolveSchedule(s.config.ReplySchedule)

	_, err := s.cron.AddFunc(cronExpression, func() {
		logrus.Info("Starting scheduled reply cycle")
		if err := s.replyService.RunReplyCycle(context.Background()); err != nil {
			logrus.Errorf("Scheduled reply cycle failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.config.ReplySchedule, err)
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with %s schedule (%s)", s.config.ReplySchedule, cronExpression)
	return nil
}

func resolveSchedule(schedule string) string {
	switch schedule {
	case "hourly":
		// Five minutes past every hour, avoiding the top-of-hour API rush.
		return "0 5 * * * *"
	case "daily":
		// Daily at 9 AM UTC
		return "0 0 9 * * *"
	default:
		return schedule
	}
}

// Stop stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		logrus.Info("Scheduler stopped")
	}
}
