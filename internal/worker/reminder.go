package worker

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odontoapp/booking-api/internal/model"
	"github.com/odontoapp/booking-api/internal/repository"
	"github.com/odontoapp/booking-api/internal/service/notification"
	"github.com/odontoapp/booking-api/pkg/logger"
	"github.com/odontoapp/booking-api/pkg/metrics"
)

// ReminderWorker is the recurring sweep over booked, un-reminded
// appointments falling inside the lookahead window. reminder_sent is the
// sole idempotency guard: an appointment is marked after one best-effort
// dispatch attempt and never revisited, so delivery is at-most-once. A run
// cut short by shutdown leaves the flag untouched and the next run catches
// up — there is no separate watermark to maintain.
type ReminderWorker struct {
	repo      repository.SlotRepository
	notifSvc  notification.Service
	interval  time.Duration
	lookahead time.Duration
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewReminderWorker(
	repo repository.SlotRepository,
	notifSvc notification.Service,
	interval, lookahead time.Duration,
	logger *logger.Logger,
	m *metrics.Metrics,
) *ReminderWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	if lookahead <= 0 {
		lookahead = 24 * time.Hour
	}
	return &ReminderWorker{
		repo:      repo,
		notifSvc:  notifSvc,
		interval:  interval,
		lookahead: lookahead,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

func (w *ReminderWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("reminder worker started", "interval", w.interval.String())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reminder worker shutting down")
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				// Storage trouble: wait for the next tick, do not retry
				// within the run.
				w.logger.Error(err, "reminder sweep failed")
			}
		}
	}
}

// Sweep performs one scan-and-dispatch pass.
func (w *ReminderWorker) Sweep(ctx context.Context) error {
	var timer *prometheus.Timer
	if w.metrics != nil {
		w.metrics.SweepsTotal.Inc()
		timer = prometheus.NewTimer(w.metrics.SweepDuration)
		defer timer.ObserveDuration()
	}

	now := w.now()
	windowEnd := now.Add(w.lookahead)

	candidates, err := w.repo.FindDueForReminder(ctx, now.Format(model.DateLayout))
	if err != nil {
		return err
	}

	for _, slot := range candidates {
		due, err := slot.DueAt()
		if err != nil {
			w.logger.Error(err, "skipping appointment with malformed schedule",
				"appointment_id", slot.ID.String())
			continue
		}
		if due.Before(now) || due.After(windowEnd) {
			continue
		}

		dispatched, err := w.notifSvc.SendReminder(ctx, slot)
		switch {
		case err != nil:
			// Logged, not retried: marking below keeps a terminally bad
			// token from being attempted on every run.
			w.logger.Error(err, "reminder dispatch failed",
				"appointment_id", slot.ID.String())
			if w.metrics != nil {
				w.metrics.RemindersFailed.Inc()
			}
		case dispatched:
			if w.metrics != nil {
				w.metrics.RemindersDispatched.Inc()
			}
		default:
			if w.metrics != nil {
				w.metrics.RemindersSkipped.Inc()
			}
		}

		if err := w.repo.MarkReminderSent(ctx, slot.ID); err != nil {
			// The flag write failed, so the next run will attempt this
			// appointment again. Acceptable: the failure is on the storage
			// side, not a duplicate-dispatch hazard under normal operation.
			w.logger.Error(err, "failed to mark reminder sent",
				"appointment_id", slot.ID.String())
		}
	}

	return nil
}
