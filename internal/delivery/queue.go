package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"langclash/internal/models"
)

// Sender delivers one payload to the collector and returns the attempt
// id assigned by the collector.
type Sender interface {
	Send(ctx context.Context, payload json.RawMessage, token string) (string, error)
}

// Options bound the durable queue
type Options struct {
	Capacity   int
	Retention  time.Duration
	MaxRetries int
}

// DefaultOptions returns the standard queue bounds
func DefaultOptions() Options {
	return Options{
		Capacity:   100,
		Retention:  7 * 24 * time.Hour,
		MaxRetries: 5,
	}
}

// Outcome says what happened to a submitted payload
type Outcome string

const (
	Delivered Outcome = "delivered"
	Queued    Outcome = "queued"
)

// Result is returned by Submit
type Result struct {
	Outcome   Outcome
	AttemptID string
}

// RetryReport summarizes a retry sweep
type RetryReport struct {
	Attempted int
	Delivered int
	Requeued  int
	Dropped   int
}

// Queue delivers telemetry at least once on a best-effort basis. Payloads
// that cannot be sent are kept in a capacity-, age- and retry-bounded
// store and retried later. Each call holds the queue lock for its whole
// read-modify-write of the store.
type Queue struct {
	mu     sync.Mutex
	store  Store
	sender Sender
	opts   Options
	now    func() time.Time
}

// NewQueue creates a queue. Zero options fall back to DefaultOptions and
// a nil now uses time.Now.
func NewQueue(store Store, sender Sender, opts Options, now func() time.Time) *Queue {
	def := DefaultOptions()
	if opts.Capacity <= 0 {
		opts.Capacity = def.Capacity
	}
	if opts.Retention <= 0 {
		opts.Retention = def.Retention
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if now == nil {
		now = time.Now
	}
	return &Queue{store: store, sender: sender, opts: opts, now: now}
}

// Submit sends a payload that has no owning user; once queued only
// RetryAll resends it.
func (q *Queue) Submit(ctx context.Context, payload any, token string) (Result, error) {
	return q.SubmitFor(ctx, "", payload, token)
}

// SubmitFor sends the payload right away and enqueues it under owner on
// any failure. The returned error is only set when the payload could be
// neither sent nor stored.
func (q *Queue) SubmitFor(ctx context.Context, owner string, payload any, token string) (Result, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode payload: %w", err)
	}

	attemptID, sendErr := q.sender.Send(ctx, data, token)
	if sendErr == nil {
		return Result{Outcome: Delivered, AttemptID: attemptID}, nil
	}
	log.Printf("[telemetry] delivery failed, queueing for retry: %v", sendErr)

	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.loadLocked(ctx)
	if err != nil {
		return Result{}, err
	}
	items = append(items, models.QueuedSubmission{
		Owner:      owner,
		Payload:    data,
		EnqueuedAt: q.now().UTC(),
		RetryCount: 0,
	})
	if err := q.saveLocked(ctx, items); err != nil {
		return Result{}, err
	}
	return Result{Outcome: Queued}, nil
}

// RetryAll attempts every queued payload once, in order. Delivered
// payloads are removed, failures are kept with a higher retry count until
// they reach MaxRetries and are dropped. token must be accepted for any
// user's payload. Safe to call at any time.
func (q *Queue) RetryAll(ctx context.Context, token string) (RetryReport, error) {
	return q.retry(ctx, token, func(models.QueuedSubmission) bool { return true })
}

// RetryOwner is RetryAll restricted to the payloads queued for owner.
// Other users' payloads are left as they are, retry count included.
func (q *Queue) RetryOwner(ctx context.Context, owner, token string) (RetryReport, error) {
	if owner == "" {
		return RetryReport{}, fmt.Errorf("retry: owner is required")
	}
	return q.retry(ctx, token, func(item models.QueuedSubmission) bool { return item.Owner == owner })
}

func (q *Queue) retry(ctx context.Context, token string, selected func(models.QueuedSubmission) bool) (RetryReport, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var report RetryReport
	items, err := q.loadLocked(ctx)
	if err != nil {
		return report, err
	}
	if len(items) == 0 {
		return report, nil
	}

	keep := make([]models.QueuedSubmission, 0, len(items))
	for i, item := range items {
		if ctx.Err() != nil {
			keep = append(keep, items[i:]...)
			break
		}
		if !selected(item) {
			keep = append(keep, item)
			continue
		}

		report.Attempted++
		if _, err := q.sender.Send(ctx, item.Payload, token); err == nil {
			report.Delivered++
			continue
		}

		item.RetryCount++
		if item.RetryCount >= q.opts.MaxRetries {
			report.Dropped++
			continue
		}
		report.Requeued++
		keep = append(keep, item)
	}

	// a sweep cut short by ctx still records what it did
	if err := q.saveLocked(context.WithoutCancel(ctx), keep); err != nil {
		return report, err
	}
	if report.Attempted > 0 {
		log.Printf("[telemetry] retry sweep: attempted=%d delivered=%d requeued=%d dropped=%d",
			report.Attempted, report.Delivered, report.Requeued, report.Dropped)
	}
	return report, nil
}

// Pending returns the queued submissions, with expired ones purged
func (q *Queue) Pending(ctx context.Context) ([]models.QueuedSubmission, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loadLocked(ctx)
}

// Purge drops everything in the queue and returns how many were removed
func (q *Queue) Purge(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load queue: %w", err)
	}
	if err := q.store.Save(ctx, nil); err != nil {
		return 0, fmt.Errorf("failed to save queue: %w", err)
	}
	return len(items), nil
}

// loadLocked reads the store and drops entries past the retention window
// or retry cap, writing the list back if anything was dropped.
func (q *Queue) loadLocked(ctx context.Context) ([]models.QueuedSubmission, error) {
	items, err := q.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}

	cutoff := q.now().Add(-q.opts.Retention)
	fresh := items[:0:0]
	for _, item := range items {
		if item.EnqueuedAt.Before(cutoff) || item.RetryCount >= q.opts.MaxRetries {
			continue
		}
		fresh = append(fresh, item)
	}
	if len(fresh) != len(items) {
		if err := q.saveLocked(ctx, fresh); err != nil {
			return nil, err
		}
	}
	return fresh, nil
}

// saveLocked evicts the oldest entries beyond capacity and writes the list
func (q *Queue) saveLocked(ctx context.Context, items []models.QueuedSubmission) error {
	if over := len(items) - q.opts.Capacity; over > 0 {
		items = items[over:]
	}
	if err := q.store.Save(ctx, items); err != nil {
		return fmt.Errorf("failed to save queue: %w", err)
	}
	return nil
}
