package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/bher20/carparkmanager/internal/alerting"
	"github.com/bher20/carparkmanager/internal/carparks"
	"github.com/bher20/carparkmanager/internal/metrics"
)

const (
	jobName = "refresh_carparks"

	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 2 * time.Second

	reportTimeout = 15 * time.Second
)

// ErrCycleInProgress is returned by RunOnce when another cycle holds the lock.
var ErrCycleInProgress = errors.New("refresh cycle already in progress")

// Fetcher returns the raw feed document.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Publisher receives every successfully built snapshot.
type Publisher interface {
	Publish(snap *carparks.Snapshot) error
}

// Phase is the position of the scheduler within a refresh cycle.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseFetching  Phase = "fetching"
	PhaseParsing   Phase = "parsing"
	PhaseBuilding  Phase = "building"
	PhasePublished Phase = "published"
	PhaseFailed    Phase = "failed"
)

// Status is a point-in-time view of the scheduler.
type Status struct {
	Phase               Phase      `json:"phase"`
	CycleID             string     `json:"cycleId,omitempty"`
	Attempt             int        `json:"attempt,omitempty"`
	CyclesRun           uint64     `json:"cyclesRun"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastError           string     `json:"lastError,omitempty"`
	LastAttemptAt       *time.Time `json:"lastAttemptAt,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	NextRunAt           *time.Time `json:"nextRunAt,omitempty"`
}

// Config parameterizes the refresh loop.
type Config struct {
	// Schedule is integer seconds, a Go duration or a cron expression.
	Schedule string
	// MaxAttempts bounds fetch+parse attempts per cycle.
	MaxAttempts int
	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration
	// FetchTimeout is only used to warn about schedules shorter than a cycle.
	FetchTimeout time.Duration
}

// Scheduler owns the periodic fetch -> parse -> build -> publish pipeline.
type Scheduler struct {
	fetcher   Fetcher
	store     Publisher
	cfg       Config
	schedule  cron.Schedule
	reporters []alerting.Reporter
	log       *zap.Logger
	now       func() time.Time
	skipFirst bool

	// cycleMu serializes refresh cycles.
	cycleMu sync.Mutex

	statusMu sync.RWMutex
	status   Status

	started  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithReporters adds reporters notified after every failed cycle.
func WithReporters(r ...alerting.Reporter) Option {
	return func(s *Scheduler) {
		s.reporters = append(s.reporters, r...)
	}
}

// WithSchedule overrides the parsed Config.Schedule.
func WithSchedule(sched cron.Schedule) Option {
	return func(s *Scheduler) {
		s.schedule = sched
	}
}

// WithoutInitialRun makes Start wait for the first schedule tick instead of
// running a cycle immediately.
func WithoutInitialRun() Option {
	return func(s *Scheduler) {
		s.skipFirst = true
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// New builds a Scheduler. It does not start the loop.
func New(fetcher Fetcher, store Publisher, cfg Config, log *zap.Logger, opts ...Option) (*Scheduler, error) {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = carparks.DefaultFetchTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Scheduler{
		fetcher: fetcher,
		store:   store,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		status:  Status{Phase: PhaseIdle},
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.schedule == nil {
		setting := cfg.Schedule
		if setting == "" {
			setting = DefaultSchedule
		}
		sched, err := ParseSchedule(setting)
		if err != nil {
			return nil, err
		}
		s.schedule = sched
	}
	return s, nil
}

// Start runs one cycle immediately (unless WithoutInitialRun was given) and
// then one per schedule tick. It blocks until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("scheduler already started")
	}
	defer close(s.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	maxCycle := MaxCycleDuration(s.cfg.MaxAttempts, s.cfg.FetchTimeout, s.cfg.RetryDelay)
	gap := shortestGap(s.schedule, s.now())
	s.log.Info("refresh: scheduler starting",
		zap.Int("max_attempts", s.cfg.MaxAttempts),
		zap.Duration("retry_delay", s.cfg.RetryDelay),
		zap.Duration("interval", gap))
	if gap < maxCycle {
		s.log.Warn("refresh: schedule is shorter than the worst-case cycle; ticks during a cycle are skipped",
			zap.Duration("interval", gap),
			zap.Duration("max_cycle", maxCycle))
	}

	select {
	case <-s.stop:
		return nil
	case <-ctx.Done():
		return nil
	default:
	}
	if !s.skipFirst {
		s.runScheduled(ctx)
	}

	for {
		next := s.schedule.Next(s.now())
		s.setNextRun(next)

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("refresh: scheduler stopping")
			return nil
		case <-timer.C:
			s.runScheduled(ctx)
		}
	}
}

// Stop ends the loop started by Start and waits for it to return.
func (s *Scheduler) Stop() error {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.started.Load() {
		<-s.done
	}
	return nil
}

// Status returns a copy of the current scheduler state.
func (s *Scheduler) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

func (s *Scheduler) runScheduled(ctx context.Context) {
	if _, err := s.RunOnce(ctx); errors.Is(err, ErrCycleInProgress) {
		s.log.Info("refresh: previous cycle still running, skipping tick")
	}
}

// RunOnce executes a single refresh cycle. On failure the published snapshot
// is left untouched and the error is returned after reporters were notified.
func (s *Scheduler) RunOnce(ctx context.Context) (*carparks.Snapshot, error) {
	if !s.cycleMu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer s.cycleMu.Unlock()

	cycleID := uuid.NewString()
	started := s.now()
	log := s.log.With(zap.String("cycle_id", cycleID))
	s.beginCycle(cycleID, started)

	var (
		raws      []carparks.RawRecord
		fetchedAt time.Time
		attempt   int
	)
	backoff := retry.WithMaxRetries(uint64(s.cfg.MaxAttempts-1), retry.NewConstant(s.cfg.RetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		s.setPhase(PhaseFetching, attempt)
		body, err := s.fetcher.Fetch(ctx)
		if err == nil {
			fetchedAt = s.now()
			s.setPhase(PhaseParsing, attempt)
			raws, err = carparks.ParseFeed(body)
		}

		outcome := carparks.Outcome(err)
		metrics.ObserveFetchAttempt(outcome)
		if err != nil {
			log.Warn("refresh: attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", s.cfg.MaxAttempts),
				zap.String("outcome", outcome),
				zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})

	if err == nil {
		s.setPhase(PhaseBuilding, attempt)
		snap := carparks.BuildSnapshot(raws, fetchedAt)
		snap.CycleID = cycleID
		if err = s.store.Publish(snap); err == nil {
			metrics.UpdateJobMetrics(jobName, started, nil)
			metrics.UpdateSnapshotMetrics(snap.Len(), snap.FetchedAt)
			s.finishCycle(nil)
			log.Info("refresh: published snapshot",
				zap.Int("records", snap.Len()),
				zap.Int("attempts", attempt),
				zap.Duration("duration", s.now().Sub(started)))
			return snap, nil
		}
		err = fmt.Errorf("publish snapshot: %w", err)
	}

	if ctx.Err() != nil {
		s.abandonCycle()
		log.Info("refresh: cycle cancelled", zap.Int("attempts", attempt))
		return nil, ctx.Err()
	}

	metrics.UpdateJobMetrics(jobName, started, err)
	st := s.finishCycle(err)
	log.Error("refresh: cycle failed, keeping previous snapshot",
		zap.Int("attempts", attempt),
		zap.Int("consecutive_failures", st.ConsecutiveFailures),
		zap.Duration("duration", s.now().Sub(started)),
		zap.Error(err))

	failure := alerting.RefreshFailure{
		CycleID:             cycleID,
		Attempts:            attempt,
		Error:               err.Error(),
		ConsecutiveFailures: st.ConsecutiveFailures,
		StartedAt:           started,
		Duration:            s.now().Sub(started),
	}
	if st.LastSuccessAt != nil {
		failure.LastSuccessAt = *st.LastSuccessAt
	}
	s.report(ctx, log, failure)

	return nil, fmt.Errorf("refresh cycle failed after %d attempt(s): %w", attempt, err)
}

func (s *Scheduler) report(ctx context.Context, log *zap.Logger, f alerting.RefreshFailure) {
	if len(s.reporters) == 0 {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	for _, r := range s.reporters {
		if err := r.ReportRefreshFailure(rctx, f); err != nil {
			log.Warn("refresh: failure report not delivered", zap.Error(err))
		}
	}
}

func (s *Scheduler) beginCycle(id string, at time.Time) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.Phase = PhaseIdle
	s.status.CycleID = id
	s.status.Attempt = 0
	s.status.LastAttemptAt = &at
	s.status.NextRunAt = nil
}

func (s *Scheduler) setPhase(p Phase, attempt int) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.Phase = p
	s.status.Attempt = attempt
}

func (s *Scheduler) setNextRun(t time.Time) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.NextRunAt = &t
}

// finishCycle records the outcome of a completed cycle and returns the new status.
func (s *Scheduler) finishCycle(err error) Status {
	now := s.now()
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.CyclesRun++
	if err == nil {
		s.status.Phase = PhasePublished
		s.status.ConsecutiveFailures = 0
		s.status.LastError = ""
		s.status.LastSuccessAt = &now
	} else {
		s.status.Phase = PhaseFailed
		s.status.ConsecutiveFailures++
		s.status.LastError = err.Error()
		s.status.LastFailureAt = &now
	}
	return s.status
}

func (s *Scheduler) abandonCycle() {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.Phase = PhaseIdle
	s.status.Attempt = 0
}
