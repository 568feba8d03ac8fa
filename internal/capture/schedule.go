package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "whatsnext/internal/log"
)

// cronLogger routes cron's own messages through the app logger. cron's Info
// is chatty (every wake-up), so it goes to debug.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}

// Scheduler re-captures one page on a cron schedule so a signage display can
// poll a PNG that tracks the live calendar.
type Scheduler struct {
	ctx   context.Context
	cron  *cron.Cron
	opts  SnapshotOptions
	shoot func(context.Context, SnapshotOptions) error
}

// NewScheduler validates opts and the five-field cron spec (descriptors such
// as "@every 15m" work too). Runs that overlap a slow capture are skipped.
func NewScheduler(ctx context.Context, spec string, loc *time.Location, opts SnapshotOptions) (*Scheduler, error) {
	if _, err := opts.withDefaults(); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}

	s := &Scheduler{ctx: ctx, opts: opts, shoot: Snapshot}
	logger := cronLogger{}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("capture: invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	appLog.Info("snapshot schedule started", "url", s.opts.URL, "next", s.Next())
}

// Stop halts the schedule and waits for an in-flight capture to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Next reports the next planned capture, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) run() {
	if err := s.shoot(s.ctx, s.opts); err != nil {
		appLog.Error("scheduled snapshot failed", err, "url", s.opts.URL, "path", s.opts.OutputPath)
	}
}
