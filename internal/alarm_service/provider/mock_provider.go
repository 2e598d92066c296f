package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// MockSMSProvider logs sends instead of delivering them. Used for dry runs.
type MockSMSProvider struct {
	logger         *slog.Logger
	FailSend       bool          // Control whether Send should simulate failure
	SimulatedDelay time.Duration // To simulate network latency
}

func NewMockSMSProvider(logger *slog.Logger, failSend bool, delay time.Duration) *MockSMSProvider {
	return &MockSMSProvider{
		logger:         logger.With("provider", "mock"),
		FailSend:       failSend,
		SimulatedDelay: delay,
	}
}

// Send simulates sending an SMS.
func (p *MockSMSProvider) Send(ctx context.Context, details SendRequestDetails) (*SendResponseDetails, error) {
	timer := prometheus.NewTimer(gatewayRequestDurationHist.WithLabelValues(p.GetName()))
	defer timer.ObserveDuration()

	p.logger.InfoContext(ctx, "MockSMSProvider: Send called",
		"job_id", details.JobID,
		"recipient_id", details.RecipientID,
		"content_length", len(details.Message))

	if p.SimulatedDelay > 0 {
		select {
		case <-time.After(p.SimulatedDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if p.FailSend {
		p.logger.WarnContext(ctx, "mock provider simulated send failure", "recipient_id", details.RecipientID)
		return &SendResponseDetails{GatewayStatus: "FAILED_MOCK"}, errors.New("mock provider simulated send failure")
	}

	return &SendResponseDetails{
		GatewayStatus: "SENT_MOCK_OK",
		RawResponse:   `{"id":"mock-` + uuid.NewString() + `"}`,
		StatusCode:    200,
	}, nil
}

func (p *MockSMSProvider) GetName() string {
	return "mock"
}
