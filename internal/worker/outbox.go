// Package worker runs the background delivery loop for the relay outbox.
// Messages that failed on the request path are retried here with
// exponential backoff until they deliver or exhaust their attempt budget.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/iburossy/bolle-backend/internal/domain"
)

var (
	// outboxDelivered counts successful deliveries by message kind.
	outboxDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_delivered_total",
			Help: "Total number of outbox messages delivered.",
		},
		[]string{"kind"},
	)

	// outboxFailed counts messages parked after exhausting their attempts.
	outboxFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_failed_total",
			Help: "Total number of outbox messages abandoned after max attempts.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(outboxDelivered, outboxFailed)
}

// OutboxStore is the persistence surface required by the worker.
type OutboxStore interface {
	DueOutbox(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.OutboxMessage, error)
	MarkOutboxDelivered(ctx context.Context, db *gorm.DB, id string, attempts int) error
	RescheduleOutbox(ctx context.Context, db *gorm.DB, id string, attempts int, nextAt time.Time, lastErr string) error
	MarkOutboxFailed(ctx context.Context, db *gorm.DB, id string, attempts int, lastErr string) error
	GetService(ctx context.Context, db *gorm.DB, id string) (*domain.Service, error)
	SetRelayReference(ctx context.Context, db *gorm.DB, alertID, reference string) error
}

// RawPusher replays a stored JSON body against a target service.
type RawPusher interface {
	PushRaw(ctx context.Context, baseURL, path, body string) (string, error)
}

// Outbox drains pending messages on a fixed tick.
type Outbox struct {
	DB    *gorm.DB
	Store OutboxStore
	Relay RawPusher

	// Clock is swappable for tests; nil means real time.
	Clock clockwork.Clock

	Interval    time.Duration
	BaseBackoff time.Duration
	MaxAttempts int
	BatchSize   int

	Log zerolog.Logger
}

// maxBackoff caps the exponential schedule.
const maxBackoff = time.Hour

// Run blocks, draining due messages every Interval until ctx is canceled.
func (w *Outbox) Run(ctx context.Context) {
	clock := w.clock()
	ticker := clock.NewTicker(w.Interval)
	defer ticker.Stop()

	w.Log.Info().Dur("interval", w.Interval).Msg("outbox worker started")
	for {
		select {
		case <-ctx.Done():
			w.Log.Info().Msg("outbox worker stopped")
			return
		case <-ticker.Chan():
			w.ProcessDue(ctx)
		}
	}
}

// ProcessDue delivers every currently due message once and returns how
// many were processed. It is the synchronous core of Run and safe to call
// directly.
func (w *Outbox) ProcessDue(ctx context.Context) int {
	now := w.clock().Now().UTC()
	batch := w.BatchSize
	if batch <= 0 {
		batch = 50
	}

	due, err := w.Store.DueOutbox(ctx, w.DB, now, batch)
	if err != nil {
		w.Log.Error().Err(err).Msg("load due outbox messages")
		return 0
	}
	for i := range due {
		w.deliver(ctx, &due[i], now)
	}
	return len(due)
}

// deliver attempts one message and records the outcome.
func (w *Outbox) deliver(ctx context.Context, msg *domain.OutboxMessage, now time.Time) {
	attempts := msg.Attempts + 1

	ref, err := w.push(ctx, msg)
	if err == nil {
		if msg.Kind == domain.OutboxAlertRelay && ref != "" && msg.RecordID != "" {
			if serr := w.Store.SetRelayReference(ctx, w.DB, msg.RecordID, ref); serr != nil {
				w.Log.Error().Err(serr).Str("alert_id", msg.RecordID).Msg("backfill relay reference")
			}
		}
		if derr := w.Store.MarkOutboxDelivered(ctx, w.DB, msg.ID, attempts); derr != nil {
			w.Log.Error().Err(derr).Str("outbox_id", msg.ID).Msg("mark delivered")
			return
		}
		outboxDelivered.WithLabelValues(msg.Kind).Inc()
		w.Log.Info().Str("outbox_id", msg.ID).Str("kind", msg.Kind).Int("attempts", attempts).Msg("outbox message delivered")
		return
	}

	if attempts >= w.MaxAttempts {
		if ferr := w.Store.MarkOutboxFailed(ctx, w.DB, msg.ID, attempts, err.Error()); ferr != nil {
			w.Log.Error().Err(ferr).Str("outbox_id", msg.ID).Msg("mark failed")
			return
		}
		outboxFailed.WithLabelValues(msg.Kind).Inc()
		w.Log.Error().Err(err).Str("outbox_id", msg.ID).Int("attempts", attempts).Msg("outbox message abandoned")
		return
	}

	next := now.Add(Backoff(w.BaseBackoff, attempts))
	if rerr := w.Store.RescheduleOutbox(ctx, w.DB, msg.ID, attempts, next, err.Error()); rerr != nil {
		w.Log.Error().Err(rerr).Str("outbox_id", msg.ID).Msg("reschedule")
		return
	}
	w.Log.Warn().Err(err).Str("outbox_id", msg.ID).Int("attempts", attempts).Time("next", next).Msg("outbox delivery failed, rescheduled")
}

// push resolves the target service and replays the stored body.
func (w *Outbox) push(ctx context.Context, msg *domain.OutboxMessage) (string, error) {
	svc, err := w.Store.GetService(ctx, w.DB, msg.TargetServiceID)
	if err != nil {
		return "", err
	}
	if !svc.Reachable() {
		return "", errServiceUnreachable
	}
	return w.Relay.PushRaw(ctx, svc.BaseURL, msg.Path, msg.Body)
}

func (w *Outbox) clock() clockwork.Clock {
	if w.Clock == nil {
		return clockwork.NewRealClock()
	}
	return w.Clock
}

// Backoff returns the delay before the next attempt: base doubled per
// completed attempt, capped at one hour.
func Backoff(base time.Duration, attempts int) time.Duration {
	if base <= 0 {
		base = 30 * time.Second
	}
	if attempts < 1 {
		attempts = 1
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// errServiceUnreachable marks a target whose directory entry is inactive
// or has no base URL.
var errServiceUnreachable = errors.New("target service unreachable")
