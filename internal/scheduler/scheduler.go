// Package scheduler fires weekly digest runs for active subscriptions.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mark2rocket/ag-studyletter/internal/domain"
	"github.com/mark2rocket/ag-studyletter/internal/observability"
	"github.com/mark2rocket/ag-studyletter/internal/repository"
)

// Runner executes a single digest delivery. Implemented by digest.Pipeline.
type Runner interface {
	Run(ctx context.Context, keyword, recipient string, scheduleID *int64) (*domain.DeliveryRecord, error)
}

// Config determines when jobs fire.
type Config struct {
	// Weekday is the day of week jobs fire on.
	Weekday time.Weekday

	// Hour and Minute are the local firing time.
	Hour   int
	Minute int

	// Location is the timezone the firing time is interpreted in.
	Location *time.Location
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.Location == nil {
		c.Location = time.Local
	}
}

// Job is a read-only snapshot of a registered trigger.
type Job struct {
	SubscriptionID int64     `json:"subscription_id"`
	Keyword        string    `json:"keyword"`
	Email          string    `json:"email"`
	NextFire       time.Time `json:"next_fire"`
}

// job is the live trigger backing a Job snapshot.
type job struct {
	sub    domain.Subscription
	cancel context.CancelFunc
}

// Scheduler owns one goroutine per active subscription. Each goroutine sleeps
// until the next configured weekday and time, invokes the runner, and re-arms.
// There is no retry on failure; the next weekly firing is the retry.
type Scheduler struct {
	runner  Runner
	subs    repository.SubscriptionRepository
	config  Config
	logger  zerolog.Logger
	metrics *observability.Metrics

	// now is the clock; replaced in tests.
	now func() time.Time

	mu   sync.Mutex
	jobs map[int64]*job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. metrics may be nil.
func NewScheduler(
	runner Runner,
	subs repository.SubscriptionRepository,
	cfg Config,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Scheduler {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		runner:  runner,
		subs:    subs,
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		jobs:    make(map[int64]*job),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// NextFire returns the first configured firing time strictly after the given
// instant, in the configured location.
func (s *Scheduler) NextFire(after time.Time) time.Time {
	local := after.In(s.config.Location)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.config.Hour, s.config.Minute, 0, 0, s.config.Location)

	days := (int(s.config.Weekday) - int(next.Weekday()) + 7) % 7
	next = next.AddDate(0, 0, days)
	if !next.After(after) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// Register installs a weekly trigger for the subscription. Registering an
// already registered subscription replaces its trigger, so the latest keyword
// and email win.
func (s *Scheduler) Register(sub *domain.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[sub.ID]; ok {
		existing.cancel()
	}

	jobCtx, cancel := context.WithCancel(s.ctx)
	j := &job{sub: *sub, cancel: cancel}
	s.jobs[sub.ID] = j

	s.wg.Add(1)
	go s.runLoop(jobCtx, j.sub)

	s.updateJobGauge()
	logger := observability.WithScheduleContext(s.logger, sub.ID, sub.Keyword)
	logger.Info().Msg("subscription job registered")
}

// Unregister removes the trigger for the subscription id. Unknown ids are a
// no-op.
func (s *Scheduler) Unregister(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return
	}
	j.cancel()
	delete(s.jobs, id)

	s.updateJobGauge()
	s.logger.Info().Int64("schedule_id", id).Msg("subscription job unregistered")
}

// Jobs returns a snapshot of registered triggers ordered by subscription id.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, Job{
			SubscriptionID: j.sub.ID,
			Keyword:        j.sub.Keyword,
			Email:          j.sub.Email,
			NextFire:       s.NextFire(now),
		})
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].SubscriptionID < jobs[k].SubscriptionID })
	return jobs
}

// SyncFromStore rebuilds the registry from the active subscriptions in the
// store. After it returns, the registered id set equals the active id set.
func (s *Scheduler) SyncFromStore(ctx context.Context) error {
	active, err := s.subs.ListActive(ctx)
	if err != nil {
		return err
	}

	activeIDs := make(map[int64]bool, len(active))
	for _, sub := range active {
		activeIDs[sub.ID] = true
		s.Register(sub)
	}

	s.mu.Lock()
	var stale []int64
	for id := range s.jobs {
		if !activeIDs[id] {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.Unregister(id)
	}

	s.logger.Info().Int("jobs", len(active)).Msg("scheduler synced from store")
	return nil
}

// Stop cancels all jobs and waits for their goroutines to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.jobs = make(map[int64]*job)
	s.updateJobGauge()
	s.mu.Unlock()

	s.logger.Info().Msg("scheduler stopped")
}

// runLoop sleeps until the next firing time, runs the digest, and re-arms.
func (s *Scheduler) runLoop(ctx context.Context, sub domain.Subscription) {
	defer s.wg.Done()

	logger := observability.WithScheduleContext(s.logger, sub.ID, sub.Keyword)
	for {
		next := s.NextFire(s.now())
		timer := time.NewTimer(next.Sub(s.now()))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if s.metrics != nil {
			s.metrics.RecordSchedulerJobFired()
		}
		logger.Info().Time("fired_at", s.now()).Msg("weekly digest fired")

		id := sub.ID
		rec, err := s.runner.Run(ctx, sub.Keyword, sub.Email, &id)
		switch {
		case err != nil:
			logger.Error().Err(err).Msg("scheduled digest run failed")
		case rec.Status == domain.DeliveryFailed:
			logger.Warn().Str("reason", stringValue(rec.ErrorMessage)).Msg("scheduled digest not delivered")
		default:
			logger.Info().Int("papers", rec.PaperCount).Msg("scheduled digest delivered")
		}
	}
}

// updateJobGauge publishes the registry size. Callers must hold mu.
func (s *Scheduler) updateJobGauge() {
	if s.metrics != nil {
		s.metrics.SetSchedulerJobs(len(s.jobs))
	}
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
