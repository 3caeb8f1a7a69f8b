// Package observability provides logging and metrics support for the
// studyletter service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for digest runs, summarization, email delivery,
//     the scheduler, and the paper source API
//   - Context helpers for propagating request and run identifiers
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("keyword", keyword).Msg("digest run started")
//
// Add digest run context to a logger:
//
//	logger = observability.WithDigestContext(logger, runID, keyword, recipient)
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("studyletter")
//
// Record metrics:
//
//	metrics.RecordDigestStarted("api")
//	metrics.RecordEmailSent()
//	metrics.RecordSourceRequest("query", elapsed.Seconds())
//
// # Context Helpers
//
// Store and retrieve request context:
//
//	ctx = observability.WithRequestID(ctx, requestID)
//	ctx = observability.WithRunID(ctx, runID)
//
//	reqID := observability.RequestIDFromContext(ctx)
//	runID := observability.RunIDFromContext(ctx)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: HTTP request identifier
//   - run_id: Digest pipeline run identifier
//   - keyword: Search keyword
//   - recipient: Digest recipient address
//   - schedule_id: Weekly subscription identifier
//   - source: Paper source (arxiv)
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
