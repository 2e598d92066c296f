package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/domain"
)

// JobOutcome is published after a job reaches a terminal status.
type JobOutcome struct {
	JobID      string           `json:"job_id"`
	GroupID    int              `json:"group_id"`
	Status     domain.JobStatus `json:"status"`
	Error      string           `json:"error,omitempty"`
	Recipients int              `json:"recipients"`
	Failed     int              `json:"failed"`
	FinishedAt time.Time        `json:"finished_at"`
}

// OutcomePublisher announces finalized jobs to other systems.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, outcome JobOutcome) error
}

// Publisher is the message broker subset used for outcome events.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NoopOutcomePublisher drops every event.
type NoopOutcomePublisher struct{}

func (NoopOutcomePublisher) PublishOutcome(context.Context, JobOutcome) error { return nil }

// BrokerOutcomePublisher publishes outcomes as JSON on one subject.
type BrokerOutcomePublisher struct {
	broker  Publisher
	subject string
	logger  *slog.Logger
}

func NewBrokerOutcomePublisher(broker Publisher, subject string, logger *slog.Logger) *BrokerOutcomePublisher {
	return &BrokerOutcomePublisher{
		broker:  broker,
		subject: subject,
		logger:  logger.With("component", "outcome_publisher", "subject", subject),
	}
}

func (p *BrokerOutcomePublisher) PublishOutcome(ctx context.Context, outcome JobOutcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal job outcome %s: %w", outcome.JobID, err)
	}
	if err := p.broker.Publish(ctx, p.subject, data); err != nil {
		return fmt.Errorf("publish job outcome %s: %w", outcome.JobID, err)
	}
	p.logger.DebugContext(ctx, "Published job outcome", "job_id", outcome.JobID, "status", outcome.Status)
	return nil
}
