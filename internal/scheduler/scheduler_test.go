package scheduler

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark2rocket/ag-studyletter/internal/domain"
)

type runCall struct {
	keyword    string
	recipient  string
	scheduleID int64
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []runCall
	fired chan runCall
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{fired: make(chan runCall, 16)}
}

func (f *fakeRunner) Run(ctx context.Context, keyword, recipient string, scheduleID *int64) (*domain.DeliveryRecord, error) {
	call := runCall{keyword: keyword, recipient: recipient, scheduleID: *scheduleID}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	select {
	case f.fired <- call:
	default:
	}
	return &domain.DeliveryRecord{Status: domain.DeliverySuccess, PaperCount: 1}, nil
}

type fakeSubsRepo struct {
	active  []*domain.Subscription
	listErr error
}

func (f *fakeSubsRepo) Create(ctx context.Context, keyword, email string) (*domain.Subscription, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSubsRepo) GetByID(ctx context.Context, id int64) (*domain.Subscription, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSubsRepo) ListActive(ctx context.Context) ([]*domain.Subscription, error) {
	return f.active, f.listErr
}

func (f *fakeSubsRepo) Deactivate(ctx context.Context, id int64) error { return nil }

func (f *fakeSubsRepo) MarkSent(ctx context.Context, id int64, sentAt time.Time) error { return nil }

func seoul(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	return loc
}

func newTestScheduler(t *testing.T, runner Runner, subs *fakeSubsRepo) *Scheduler {
	t.Helper()
	s := NewScheduler(runner, subs, Config{
		Weekday:  time.Monday,
		Hour:     9,
		Minute:   0,
		Location: seoul(t),
	}, zerolog.Nop(), nil)
	t.Cleanup(s.Stop)
	return s
}

func testSubscription(id int64, keyword string) *domain.Subscription {
	return &domain.Subscription{
		ID:      id,
		Keyword: keyword,
		Email:   "reader@example.com",
		Active:  true,
	}
}

func TestScheduler_NextFire(t *testing.T) {
	loc := seoul(t)
	s := newTestScheduler(t, newFakeRunner(), &fakeSubsRepo{})

	// 2025-03-10 is a Monday.
	tests := []struct {
		name     string
		after    time.Time
		expected time.Time
	}{
		{
			name:     "midweek rolls to next monday",
			after:    time.Date(2025, 3, 12, 15, 0, 0, 0, loc),
			expected: time.Date(2025, 3, 17, 9, 0, 0, 0, loc),
		},
		{
			name:     "monday before nine fires same day",
			after:    time.Date(2025, 3, 10, 8, 30, 0, 0, loc),
			expected: time.Date(2025, 3, 10, 9, 0, 0, 0, loc),
		},
		{
			name:     "exactly nine rolls a full week",
			after:    time.Date(2025, 3, 10, 9, 0, 0, 0, loc),
			expected: time.Date(2025, 3, 17, 9, 0, 0, 0, loc),
		},
		{
			name:     "monday after nine rolls a full week",
			after:    time.Date(2025, 3, 10, 9, 0, 1, 0, loc),
			expected: time.Date(2025, 3, 17, 9, 0, 0, 0, loc),
		},
		{
			name:     "other timezone is converted",
			after:    time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC), // Monday 08:00 KST
			expected: time.Date(2025, 3, 10, 9, 0, 0, 0, loc),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.expected.Equal(s.NextFire(tt.after)),
				"NextFire(%v) = %v, want %v", tt.after, s.NextFire(tt.after), tt.expected)
		})
	}
}

func TestScheduler_RegisterUnregister(t *testing.T) {
	s := newTestScheduler(t, newFakeRunner(), &fakeSubsRepo{})

	s.Register(testSubscription(1, "transformer"))
	s.Register(testSubscription(2, "diffusion"))

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, int64(1), jobs[0].SubscriptionID)
	assert.Equal(t, "transformer", jobs[0].Keyword)
	assert.Equal(t, int64(2), jobs[1].SubscriptionID)

	// Re-registering the same id replaces the trigger.
	s.Register(testSubscription(1, "reinforcement learning"))
	jobs = s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "reinforcement learning", jobs[0].Keyword)

	s.Unregister(1)
	assert.Len(t, s.Jobs(), 1)

	// Unknown ids are a no-op.
	s.Unregister(99)
	assert.Len(t, s.Jobs(), 1)
}

func TestScheduler_RegisterLogsScheduleFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	s := NewScheduler(newFakeRunner(), &fakeSubsRepo{}, Config{
		Weekday:  time.Monday,
		Hour:     9,
		Minute:   0,
		Location: seoul(t),
	}, logger, nil)
	t.Cleanup(s.Stop)

	s.Register(testSubscription(7, "quantum computing"))

	out := buf.String()
	assert.Contains(t, out, "subscription job registered")
	assert.Contains(t, out, `"schedule_id":7`)
	assert.Contains(t, out, `"keyword":"quantum computing"`)
}

func TestScheduler_SyncFromStore(t *testing.T) {
	t.Run("registers all active subscriptions", func(t *testing.T) {
		subs := &fakeSubsRepo{active: []*domain.Subscription{
			testSubscription(1, "transformer"),
			testSubscription(3, "diffusion"),
		}}
		s := newTestScheduler(t, newFakeRunner(), subs)

		require.NoError(t, s.SyncFromStore(context.Background()))

		jobs := s.Jobs()
		require.Len(t, jobs, 2)
		assert.Equal(t, int64(1), jobs[0].SubscriptionID)
		assert.Equal(t, int64(3), jobs[1].SubscriptionID)
	})

	t.Run("drops jobs no longer active", func(t *testing.T) {
		subs := &fakeSubsRepo{active: []*domain.Subscription{testSubscription(1, "transformer")}}
		s := newTestScheduler(t, newFakeRunner(), subs)

		s.Register(testSubscription(2, "stale"))
		require.NoError(t, s.SyncFromStore(context.Background()))

		jobs := s.Jobs()
		require.Len(t, jobs, 1)
		assert.Equal(t, int64(1), jobs[0].SubscriptionID)
	})

	t.Run("propagates store errors", func(t *testing.T) {
		subs := &fakeSubsRepo{listErr: errors.New("database down")}
		s := newTestScheduler(t, newFakeRunner(), subs)

		assert.Error(t, s.SyncFromStore(context.Background()))
	})
}

func TestScheduler_Fires(t *testing.T) {
	runner := newFakeRunner()
	s := newTestScheduler(t, runner, &fakeSubsRepo{})

	// Freeze the clock a moment before the firing time so the timer pops
	// almost immediately.
	loc := seoul(t)
	s.now = func() time.Time {
		return time.Date(2025, 3, 10, 8, 59, 59, int(950*time.Millisecond), loc)
	}

	s.Register(testSubscription(7, "transformer"))

	select {
	case call := <-runner.fired:
		assert.Equal(t, "transformer", call.keyword)
		assert.Equal(t, "reader@example.com", call.recipient)
		assert.Equal(t, int64(7), call.scheduleID)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not fire")
	}

	s.Unregister(7)
}

func TestScheduler_Stop(t *testing.T) {
	s := NewScheduler(newFakeRunner(), &fakeSubsRepo{}, Config{
		Weekday:  time.Monday,
		Hour:     9,
		Location: seoul(t),
	}, zerolog.Nop(), nil)

	s.Register(testSubscription(1, "transformer"))
	s.Register(testSubscription(2, "diffusion"))

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Empty(t, s.Jobs())
}
