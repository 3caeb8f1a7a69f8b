package digest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/mark2rocket/ag-studyletter/internal/domain"
	"github.com/mark2rocket/ag-studyletter/internal/observability"
	"github.com/mark2rocket/ag-studyletter/internal/repository"
)

var fixedNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeSearch struct {
	papers     []domain.Paper
	err        error
	gotKeyword string
	gotMax     int
	gotRunID   string
}

func (f *fakeSearch) Search(ctx context.Context, keyword string, max int) ([]domain.Paper, error) {
	f.gotKeyword = keyword
	f.gotMax = max
	f.gotRunID = observability.RunIDFromContext(ctx)
	return f.papers, f.err
}

type fakeSummarizer struct {
	summary string
	err     error
	calls   int
}

func (f *fakeSummarizer) Summarize(ctx context.Context, abstract string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

func (f *fakeSummarizer) Provider() string { return "fake" }
func (f *fakeSummarizer) Model() string    { return "fake-model" }

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	err  error
	sent []sentMail
}

func (f *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

type fakeHistory struct {
	mu      sync.Mutex
	records []*domain.DeliveryRecord
	err     error
	nextID  int64
}

func (f *fakeHistory) Record(ctx context.Context, rec *domain.DeliveryRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.nextID++
	copied := *rec
	f.records = append(f.records, &copied)
	return f.nextID, nil
}

func (f *fakeHistory) List(ctx context.Context, filter repository.HistoryFilter) ([]*domain.DeliveryRecord, int64, error) {
	return nil, 0, nil
}

func (f *fakeHistory) CountByStatus(ctx context.Context) (domain.HistoryStats, error) {
	return domain.HistoryStats{}, nil
}

type fakeSubs struct {
	markSentIDs []int64
	markSentErr error
}

func (f *fakeSubs) Create(ctx context.Context, keyword, email string) (*domain.Subscription, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSubs) GetByID(ctx context.Context, id int64) (*domain.Subscription, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSubs) ListActive(ctx context.Context) ([]*domain.Subscription, error) {
	return nil, nil
}

func (f *fakeSubs) Deactivate(ctx context.Context, id int64) error { return nil }

func (f *fakeSubs) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	if f.markSentErr != nil {
		return f.markSentErr
	}
	f.markSentIDs = append(f.markSentIDs, id)
	return nil
}

type pipelineFixture struct {
	pipeline   *Pipeline
	search     *fakeSearch
	summarizer *fakeSummarizer
	mailer     *fakeMailer
	history    *fakeHistory
	subs       *fakeSubs
}

func recentPapers() []domain.Paper {
	return []domain.Paper{
		{
			Title:       "Attention Is All You Need",
			Authors:     []string{"Ashish Vaswani"},
			Abstract:    "We propose the transformer.",
			SourceURL:   "http://arxiv.org/pdf/1706.03762",
			PublishedAt: fixedNow.Add(-48 * time.Hour),
		},
		{
			Title:       "Scaling Laws",
			Authors:     []string{"A", "B"},
			Abstract:    "We study scaling.",
			SourceURL:   "http://arxiv.org/pdf/2001.08361",
			PublishedAt: fixedNow.Add(-72 * time.Hour),
		},
	}
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		search:     &fakeSearch{papers: recentPapers()},
		summarizer: &fakeSummarizer{summary: "• 요약이에요."},
		mailer:     &fakeMailer{},
		history:    &fakeHistory{},
		subs:       &fakeSubs{},
	}
	f.pipeline = NewPipeline(
		f.search, f.summarizer, f.mailer, f.history, f.subs,
		rate.NewLimiter(rate.Inf, 1),
		Config{},
		zerolog.Nop(),
		nil,
	)
	f.pipeline.now = func() time.Time { return fixedNow }
	return f
}

func TestPipeline_Run_SearchRequest(t *testing.T) {
	f := newPipelineFixture(t)
	f.pipeline.config.SearchResults = 30

	_, err := f.pipeline.Run(context.Background(), "transformer", "reader@example.com", nil)
	require.NoError(t, err)

	// The configured result count and a correlation run id reach the provider.
	assert.Equal(t, 30, f.search.gotMax)
	assert.NotEmpty(t, f.search.gotRunID)
}

func TestPipeline_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("successful adhoc run", func(t *testing.T) {
		f := newPipelineFixture(t)

		rec, err := f.pipeline.Run(ctx, "transformer", "reader@example.com", nil)
		require.NoError(t, err)

		assert.Equal(t, domain.DeliverySuccess, rec.Status)
		assert.Equal(t, 2, rec.PaperCount)
		assert.Nil(t, rec.ErrorMessage)
		assert.Equal(t, int64(1), rec.ID)
		require.NotNil(t, rec.EmailContent)
		assert.Contains(t, *rec.EmailContent, "[논문 1]")

		require.Len(t, f.mailer.sent, 1)
		mail := f.mailer.sent[0]
		assert.Equal(t, "reader@example.com", mail.to)
		assert.Equal(t, Subject("transformer", fixedNow), mail.subject)
		assert.Contains(t, mail.body, "Attention Is All You Need")
		assert.Contains(t, mail.body, "• 요약이에요.")

		require.Len(t, f.history.records, 1)
		assert.Equal(t, 2, f.summarizer.calls)
		assert.Empty(t, f.subs.markSentIDs, "adhoc run must not touch the schedule")
	})

	t.Run("scheduled run marks subscription sent", func(t *testing.T) {
		f := newPipelineFixture(t)
		scheduleID := int64(42)

		rec, err := f.pipeline.Run(ctx, "transformer", "reader@example.com", &scheduleID)
		require.NoError(t, err)

		assert.Equal(t, domain.DeliverySuccess, rec.Status)
		require.NotNil(t, rec.ScheduleID)
		assert.Equal(t, scheduleID, *rec.ScheduleID)
		assert.Equal(t, []int64{42}, f.subs.markSentIDs)
	})

	t.Run("normalizes keyword before searching", func(t *testing.T) {
		f := newPipelineFixture(t)

		_, err := f.pipeline.Run(ctx, "  Quantum   Computing ", "reader@example.com", nil)
		require.NoError(t, err)
		assert.Equal(t, "quantum computing", f.search.gotKeyword)
	})

	t.Run("summarizer failure degrades to sentinel summary", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.summarizer.err = errors.New("quota exceeded")

		rec, err := f.pipeline.Run(ctx, "transformer", "reader@example.com", nil)
		require.NoError(t, err)

		assert.Equal(t, domain.DeliverySuccess, rec.Status)
		require.Len(t, f.mailer.sent, 1)
		assert.Contains(t, f.mailer.sent[0].body, "• 요약 생성 중 오류가 발생했습니다: quota exceeded")
	})

	t.Run("send failure records failed delivery with content", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.mailer.err = errors.New("smtp connect: connection refused")
		scheduleID := int64(7)

		rec, err := f.pipeline.Run(ctx, "transformer", "reader@example.com", &scheduleID)
		require.NoError(t, err, "a failed delivery is an outcome, not a pipeline error")

		assert.Equal(t, domain.DeliveryFailed, rec.Status)
		require.NotNil(t, rec.ErrorMessage)
		assert.Contains(t, *rec.ErrorMessage, "connection refused")
		assert.NotNil(t, rec.EmailContent, "body is kept for failed sends")
		assert.Equal(t, 2, rec.PaperCount)

		require.Len(t, f.history.records, 1)
		assert.Empty(t, f.subs.markSentIDs, "failed send must not update last sent")
	})

	t.Run("search error records failed run and returns error", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.search.err = errors.New("arXiv unavailable")

		rec, err := f.pipeline.Run(ctx, "transformer", "reader@example.com", nil)
		require.Error(t, err)

		assert.Equal(t, domain.DeliveryFailed, rec.Status)
		assert.Equal(t, 0, rec.PaperCount)
		require.NotNil(t, rec.ErrorMessage)
		assert.Contains(t, *rec.ErrorMessage, "arXiv unavailable")
		assert.Nil(t, rec.EmailContent)

		require.Len(t, f.history.records, 1)
		assert.Empty(t, f.mailer.sent)
		assert.Equal(t, 0, f.summarizer.calls)
	})

	t.Run("no recent papers records failed run without error", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.search.papers = nil

		rec, err := f.pipeline.Run(ctx, "transformer", "reader@example.com", nil)
		require.NoError(t, err)

		assert.Equal(t, domain.DeliveryFailed, rec.Status)
		assert.Equal(t, 0, rec.PaperCount)
		require.NotNil(t, rec.ErrorMessage)
		assert.Equal(t, "최근 7일 이내 논문을 찾지 못했습니다.", *rec.ErrorMessage)

		require.Len(t, f.history.records, 1)
		assert.Empty(t, f.mailer.sent)
	})

	t.Run("stale papers are filtered out", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.search.papers = []domain.Paper{
			{Title: "Old", PublishedAt: fixedNow.Add(-30 * 24 * time.Hour)},
		}

		rec, err := f.pipeline.Run(ctx, "transformer", "reader@example.com", nil)
		require.NoError(t, err)
		assert.Equal(t, domain.DeliveryFailed, rec.Status)
		assert.Empty(t, f.mailer.sent)
	})

	t.Run("caps papers per digest", func(t *testing.T) {
		f := newPipelineFixture(t)
		papers := make([]domain.Paper, 8)
		for i := range papers {
			papers[i] = domain.Paper{
				Title:       strings.Repeat("x", i+1),
				Abstract:    "abstract",
				PublishedAt: fixedNow.Add(-time.Duration(i) * time.Hour),
			}
		}
		f.search.papers = papers

		rec, err := f.pipeline.Run(ctx, "transformer", "reader@example.com", nil)
		require.NoError(t, err)
		assert.Equal(t, 5, rec.PaperCount)
		assert.Equal(t, 5, f.summarizer.calls)
	})

	t.Run("history failure surfaces as error", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.history.err = errors.New("database down")

		rec, err := f.pipeline.Run(ctx, "transformer", "reader@example.com", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "recording delivery")
		assert.NotNil(t, rec)
	})

	t.Run("mark sent failure does not fail the run", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.subs.markSentErr = errors.New("database down")
		scheduleID := int64(9)

		rec, err := f.pipeline.Run(ctx, "transformer", "reader@example.com", &scheduleID)
		require.NoError(t, err)
		assert.Equal(t, domain.DeliverySuccess, rec.Status)
	})
}

func TestFilterRecent(t *testing.T) {
	cutoff := fixedNow.Add(-7 * 24 * time.Hour)
	papers := []domain.Paper{
		{Title: "fresh", PublishedAt: fixedNow.Add(-time.Hour)},
		{Title: "stale", PublishedAt: fixedNow.Add(-8 * 24 * time.Hour)},
		{Title: "edge", PublishedAt: cutoff},
	}

	recent := filterRecent(papers, cutoff, 5)
	require.Len(t, recent, 2)
	assert.Equal(t, "fresh", recent[0].Title)
	assert.Equal(t, "edge", recent[1].Title)
}
