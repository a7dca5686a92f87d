// Package scheduler runs the periodic jobs of the booking service. Jobs
// are cron specs evaluated in the campaign timezone, so "0 9 * * *" means
// 09:00 local time across daylight saving changes.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/iliyamo/experience-booking/internal/service"
)

// ReminderRunner performs one reminder sweep.
type ReminderRunner interface {
	SendRemindersForTomorrow(ctx context.Context) (service.ReminderSummary, error)
}

// jobTimeout bounds a single sweep.
const jobTimeout = 10 * time.Minute

type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
}

// New returns a stopped scheduler evaluating specs in loc. A job that is
// still running when its next tick comes is skipped, and a panicking job
// is logged instead of crashing the process.
func New(loc *time.Location, log *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	cl := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log: log,
	}
}

// AddReminders schedules the daily reminder sweep.
func (s *Scheduler) AddReminders(spec string, r ReminderRunner) error {
	_, err := s.cron.AddFunc(spec, func() { s.runReminders(r) })
	if err != nil {
		return fmt.Errorf("schedule reminders %q: %w", spec, err)
	}
	s.log.Info("reminder job scheduled", "spec", spec, "location", s.cron.Location().String())
	return nil
}

func (s *Scheduler) runReminders(r ReminderRunner) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	sum, err := r.SendRemindersForTomorrow(ctx)
	if err != nil {
		s.log.Error("reminder sweep failed", "err", err)
		return
	}
	s.log.Info("reminder sweep finished",
		"date", sum.Date, "total", sum.Total, "sent", sum.Sent, "failed", sum.Failed,
		"took", time.Since(start).String())
}

// Next returns when the first scheduled job fires next, or the zero time.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Schedule.Next(time.Now().In(s.cron.Location()))
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop prevents new runs and waits for running jobs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out with jobs still running")
	}
}

// cronLogger adapts slog to cron's logger.
type cronLogger struct{ log *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
