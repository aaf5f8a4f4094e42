package service

import (
	"context"
	"log"

	"langclash/internal/delivery"
	"langclash/internal/models"
)

// TelemetryService hands flushed payloads to the delivery queue and raises
// proctor alerts for suspicious rounds
type TelemetryService struct {
	queue  *delivery.Queue
	alerts *AlertService
}

// NewTelemetryService creates a telemetry service. alerts may be nil.
func NewTelemetryService(queue *delivery.Queue, alerts *AlertService) *TelemetryService {
	return &TelemetryService{queue: queue, alerts: alerts}
}

// Submit delivers or queues one payload. Delivery failures are absorbed by
// the queue; only a store failure is returned.
func (s *TelemetryService) Submit(ctx context.Context, payload *models.TelemetryPayload, token string) error {
	result, err := s.queue.SubmitFor(ctx, payload.UserID, payload, token)
	if err != nil {
		return err
	}
	if result.Outcome == delivery.Queued {
		log.Printf("[telemetry] session %s round %d (%s) queued for retry", payload.SessionID, payload.RoundNumber, payload.RoundStatus)
	}

	if s.alerts != nil && s.alerts.ShouldAlert(payload) {
		if err := s.alerts.NotifySuspicious(ctx, payload); err != nil {
			log.Printf("[telemetry] proctor alert failed: %v", err)
		}
	}
	return nil
}

// RetryAll runs one retry sweep over the whole queue; token must be
// accepted for every user's payloads
func (s *TelemetryService) RetryAll(ctx context.Context, token string) (delivery.RetryReport, error) {
	return s.queue.RetryAll(ctx, token)
}

// RetryFor resends only the payloads queued for userID, with that user's
// token
func (s *TelemetryService) RetryFor(ctx context.Context, userID, token string) (delivery.RetryReport, error) {
	return s.queue.RetryOwner(ctx, userID, token)
}

// Pending returns the payloads waiting for redelivery
func (s *TelemetryService) Pending(ctx context.Context) ([]models.QueuedSubmission, error) {
	return s.queue.Pending(ctx)
}
