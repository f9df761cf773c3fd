package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/complydesk/backoffice/internal/logger"
	"github.com/complydesk/backoffice/internal/ports"
)

// alignedSchedule fires at anchor + k*interval for k >= 1.
type alignedSchedule struct {
	anchor   time.Time
	interval time.Duration
}

// Next returns the first tick strictly after t.
func (s alignedSchedule) Next(t time.Time) time.Time {
	if t.Before(s.anchor) {
		return s.anchor.Add(s.interval)
	}
	k := t.Sub(s.anchor)/s.interval + 1
	return s.anchor.Add(k * s.interval)
}

// CronScheduler runs liveness reminders on a robfig/cron runner
type CronScheduler struct {
	cron   *cron.Cron
	logger logger.Logger
}

// NewCronScheduler creates and starts the runner. A job still running when
// its next tick arrives is skipped for that tick.
func NewCronScheduler(log logger.Logger) *CronScheduler {
	if log == nil {
		log = logger.Nop()
	}
	cl := cronLogger{log: log}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Start()
	return &CronScheduler{cron: c, logger: log}
}

// Schedule registers job to run every interval, aligned to anchor
func (s *CronScheduler) Schedule(anchor time.Time, interval time.Duration, job func()) ports.ReminderHandle {
	if interval <= 0 {
		return &handle{}
	}
	id := s.cron.Schedule(alignedSchedule{anchor: anchor, interval: interval}, cron.FuncJob(job))
	s.logger.Debug(context.Background(), "Reminder scheduled", map[string]interface{}{
		"entry_id": int(id),
		"anchor":   anchor.Format(time.RFC3339),
		"interval": interval.String(),
	})
	return &handle{cancel: func() { s.cron.Remove(id) }}
}

// Stop halts the runner and waits for running jobs to finish, or ctx to end
func (s *CronScheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// handle removes its job at most once
type handle struct {
	once   sync.Once
	cancel func()
}

func (h *handle) Cancel() {
	h.once.Do(func() {
		if h.cancel != nil {
			h.cancel()
		}
	})
}

// cronLogger adapts Logger to cron.Logger
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(context.Background(), "cron: "+msg, kvFields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(context.Background(), "cron: "+msg, err, kvFields(keysAndValues))
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return fields
}
