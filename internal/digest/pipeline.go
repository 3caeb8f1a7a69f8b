package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/mark2rocket/ag-studyletter/internal/domain"
	"github.com/mark2rocket/ag-studyletter/internal/llm"
	"github.com/mark2rocket/ag-studyletter/internal/mailer"
	"github.com/mark2rocket/ag-studyletter/internal/observability"
	"github.com/mark2rocket/ag-studyletter/internal/repository"
)

const (
	// noRecentPapersMessage is recorded when the search returns nothing
	// within the recency window.
	noRecentPapersMessage = "최근 7일 이내 논문을 찾지 못했습니다."

	// summaryErrorPrefix replaces the summary when the LLM call fails.
	// The digest still goes out with the remaining summaries intact.
	summaryErrorPrefix = "• 요약 생성 중 오류가 발생했습니다: "

	// Trigger labels for metrics.
	triggerAdhoc     = "adhoc"
	triggerScheduled = "scheduled"
)

// SearchProvider finds recent papers for a keyword, newest first.
type SearchProvider interface {
	Search(ctx context.Context, keyword string, max int) ([]domain.Paper, error)
}

// Config holds the tunables of a digest run.
type Config struct {
	// RecencyWindow limits results to papers published within this window.
	RecencyWindow time.Duration

	// MaxPapers caps the number of papers per digest.
	MaxPapers int

	// SearchResults is the number of results requested from the search
	// provider before recency filtering. Zero lets the provider decide.
	SearchResults int
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.RecencyWindow == 0 {
		c.RecencyWindow = 7 * 24 * time.Hour
	}
	if c.MaxPapers == 0 {
		c.MaxPapers = 5
	}
}

// Pipeline runs a digest end to end: search, summarize, format, send, record.
// It is safe for concurrent runs; all mutable state is per-run.
type Pipeline struct {
	search     SearchProvider
	summarizer llm.Summarizer
	mailer     mailer.Mailer
	history    repository.HistoryRepository
	subs       repository.SubscriptionRepository
	limiter    *rate.Limiter
	logger     zerolog.Logger
	metrics    *observability.Metrics
	config     Config

	// now is the clock; replaced in tests for deterministic output.
	now func() time.Time
}

// NewPipeline creates a digest pipeline. limiter paces summarization calls
// across all concurrent runs; pass rate.NewLimiter(rate.Inf, 1) to disable
// pacing. metrics may be nil.
func NewPipeline(
	search SearchProvider,
	summarizer llm.Summarizer,
	sender mailer.Mailer,
	history repository.HistoryRepository,
	subs repository.SubscriptionRepository,
	limiter *rate.Limiter,
	cfg Config,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Pipeline {
	cfg.applyDefaults()

	return &Pipeline{
		search:     search,
		summarizer: summarizer,
		mailer:     sender,
		history:    history,
		subs:       subs,
		limiter:    limiter,
		logger:     logger,
		metrics:    metrics,
		config:     cfg,
		now:        time.Now,
	}
}

// Run executes a single digest for the keyword and recipient. scheduleID is
// nil for ad-hoc sends and set for scheduler-triggered ones. Every run
// produces exactly one history record; the returned record reflects the
// outcome even when the delivery failed. A non-nil error means the run could
// not complete its bookkeeping (search failure, history write failure), not a
// failed delivery.
func (p *Pipeline) Run(ctx context.Context, keyword, recipient string, scheduleID *int64) (*domain.DeliveryRecord, error) {
	started := p.now()
	keyword = domain.NormalizeKeyword(keyword)

	trigger := triggerAdhoc
	if scheduleID != nil {
		trigger = triggerScheduled
	}
	if p.metrics != nil {
		p.metrics.RecordDigestStarted(trigger)
	}

	runID := uuid.New().String()
	ctx = observability.WithRunID(ctx, runID)
	logger := observability.WithDigestContext(p.logger, runID, keyword, recipient)
	logger.Info().Str("trigger", trigger).Msg("digest run started")

	// Searching
	papers, err := p.search.Search(ctx, keyword, p.config.SearchResults)
	if err != nil {
		logger.Error().Err(err).Msg("paper search failed")
		rec, recordErr := p.recordFailure(ctx, scheduleID, keyword, recipient, err.Error())
		if recordErr != nil {
			return rec, recordErr
		}
		p.observeFailure(trigger, started)
		return rec, err
	}

	papers = filterRecent(papers, started.Add(-p.config.RecencyWindow), p.config.MaxPapers)
	if len(papers) == 0 {
		logger.Info().Msg("no recent papers found")
		rec, recordErr := p.recordFailure(ctx, scheduleID, keyword, recipient, noRecentPapersMessage)
		if recordErr != nil {
			return rec, recordErr
		}
		p.observeFailure(trigger, started)
		return rec, nil
	}

	// Summarizing
	summarized := p.summarizeAll(ctx, logger, papers)

	// Formatting
	now := p.now()
	subject := Subject(keyword, now)
	body := FormatDigest(summarized, keyword, now)

	// Sending
	status := domain.DeliverySuccess
	var errorMessage *string
	if err := p.mailer.Send(ctx, recipient, subject, body); err != nil {
		logger.Error().Err(err).Msg("digest email send failed")
		status = domain.DeliveryFailed
		msg := err.Error()
		errorMessage = &msg
		if p.metrics != nil {
			p.metrics.RecordEmailFailed()
		}
	} else {
		logger.Info().Int("papers", len(summarized)).Msg("digest email sent")
		if p.metrics != nil {
			p.metrics.RecordEmailSent()
		}
	}

	// Recording
	rec := &domain.DeliveryRecord{
		ScheduleID:   scheduleID,
		Keyword:      keyword,
		Recipient:    recipient,
		PaperCount:   len(summarized),
		Status:       status,
		ErrorMessage: errorMessage,
		EmailContent: &body,
		SentAt:       p.now(),
	}
	id, err := p.history.Record(ctx, rec)
	if err != nil {
		logger.Error().Err(err).Msg("failed to record delivery")
		return rec, fmt.Errorf("recording delivery: %w", err)
	}
	rec.ID = id

	if scheduleID != nil && status == domain.DeliverySuccess {
		if err := p.subs.MarkSent(ctx, *scheduleID, rec.SentAt); err != nil {
			logger.Warn().Err(err).Int64("schedule_id", *scheduleID).Msg("failed to update last sent time")
		}
	}

	if p.metrics != nil {
		if status == domain.DeliverySuccess {
			p.metrics.RecordDigestCompleted(trigger, len(summarized), p.now().Sub(started).Seconds())
		} else {
			p.metrics.RecordDigestFailed(trigger, p.now().Sub(started).Seconds())
		}
	}

	return rec, nil
}

// summarizeAll summarizes each paper in input order, pacing calls through the
// shared limiter. A provider failure yields a sentinel summary instead of
// aborting the run.
func (p *Pipeline) summarizeAll(ctx context.Context, logger zerolog.Logger, papers []domain.Paper) []domain.SummarizedPaper {
	summarized := make([]domain.SummarizedPaper, 0, len(papers))
	for _, paper := range papers {
		summarized = append(summarized, domain.SummarizedPaper{
			Paper:   paper,
			Summary: p.summarize(ctx, logger, paper),
		})
	}
	return summarized
}

func (p *Pipeline) summarize(ctx context.Context, logger zerolog.Logger, paper domain.Paper) string {
	if err := p.limiter.Wait(ctx); err != nil {
		logger.Warn().Err(err).Str("title", paper.Title).Msg("summarize rate limiter interrupted")
		return summaryErrorPrefix + err.Error()
	}

	started := p.now()
	summary, err := p.summarizer.Summarize(ctx, paper.Abstract)
	if err != nil {
		logger.Warn().Err(err).Str("title", paper.Title).Msg("summarization failed")
		if p.metrics != nil {
			p.metrics.RecordSummarizeRequestFailed(p.summarizer.Model(), "provider_error")
		}
		return summaryErrorPrefix + err.Error()
	}

	if p.metrics != nil {
		p.metrics.RecordSummarizeRequest(p.summarizer.Model(), p.now().Sub(started).Seconds())
	}
	return summary
}

// recordFailure writes the single history record for runs that never produced
// an email: no content, zero papers.
func (p *Pipeline) recordFailure(ctx context.Context, scheduleID *int64, keyword, recipient, message string) (*domain.DeliveryRecord, error) {
	rec := &domain.DeliveryRecord{
		ScheduleID:   scheduleID,
		Keyword:      keyword,
		Recipient:    recipient,
		PaperCount:   0,
		Status:       domain.DeliveryFailed,
		ErrorMessage: &message,
		SentAt:       p.now(),
	}

	id, err := p.history.Record(ctx, rec)
	if err != nil {
		return rec, fmt.Errorf("recording delivery: %w", err)
	}
	rec.ID = id
	return rec, nil
}

func (p *Pipeline) observeFailure(trigger string, started time.Time) {
	if p.metrics != nil {
		p.metrics.RecordDigestFailed(trigger, p.now().Sub(started).Seconds())
	}
}

// filterRecent keeps papers published after cutoff, preserving input order,
// capped at max.
func filterRecent(papers []domain.Paper, cutoff time.Time, max int) []domain.Paper {
	recent := make([]domain.Paper, 0, max)
	for _, paper := range papers {
		if paper.PublishedAt.Before(cutoff) {
			continue
		}
		recent = append(recent, paper)
		if len(recent) >= max {
			break
		}
	}
	return recent
}
