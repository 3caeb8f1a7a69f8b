package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mark2rocket/ag-studyletter/internal/domain"
	"github.com/mark2rocket/ag-studyletter/internal/repository"
	"github.com/mark2rocket/ag-studyletter/internal/scheduler"
)

// maxRequestBodySize limits request bodies to 1 MB.
const maxRequestBodySize = 1 << 20

// digestRequest is the JSON request body for subscriptions and ad-hoc digests.
type digestRequest struct {
	Keyword string `json:"keyword"`
	Email   string `json:"email"`
}

// deliveryResponse summarizes a digest delivery outcome.
type deliveryResponse struct {
	ID           int64     `json:"id"`
	ScheduleID   *int64    `json:"schedule_id,omitempty"`
	Keyword      string    `json:"keyword"`
	Recipient    string    `json:"recipient"`
	PaperCount   int       `json:"paper_count"`
	Status       string    `json:"status"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	SentAt       time.Time `json:"sent_at"`
}

// subscriptionResponse is the JSON shape of a subscription.
type subscriptionResponse struct {
	ID         int64      `json:"id"`
	Keyword    string     `json:"keyword"`
	Email      string     `json:"email"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSentAt *time.Time `json:"last_sent_at,omitempty"`
}

// listSubscriptionsResponse wraps the active subscription list.
type listSubscriptionsResponse struct {
	Subscriptions []subscriptionResponse `json:"subscriptions"`
	TotalCount    int                    `json:"total_count"`
}

// listJobsResponse wraps the scheduler registry snapshot.
type listJobsResponse struct {
	Jobs       []scheduler.Job `json:"jobs"`
	TotalCount int             `json:"total_count"`
}

// listHistoryResponse wraps a page of delivery records.
type listHistoryResponse struct {
	Records    []deliveryResponse `json:"records"`
	TotalCount int64              `json:"total_count"`
}

// historyStatsResponse is the JSON shape of aggregate delivery counts.
type historyStatsResponse struct {
	Total   int64 `json:"total"`
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
}

// sendDigest handles POST /api/v1/digests.
// It runs the digest pipeline once for the given keyword and recipient. A
// failed delivery is still a 200: the outcome is in the record, not the
// transport.
func (s *Server) sendDigest(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeDigestRequest(w, r)
	if !ok {
		return
	}

	rec, err := s.pipeline.Run(r.Context(), req.Keyword, req.Email, nil)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, deliveryToResponse(rec))
}

// createSubscription handles POST /api/v1/subscriptions.
func (s *Server) createSubscription(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeDigestRequest(w, r)
	if !ok {
		return
	}

	sub, err := s.subs.Create(r.Context(), req.Keyword, req.Email)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.jobs.Register(sub)

	writeJSON(w, http.StatusCreated, subscriptionToResponse(sub))
}

// listSubscriptions handles GET /api/v1/subscriptions.
func (s *Server) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.subs.ListActive(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := listSubscriptionsResponse{
		Subscriptions: make([]subscriptionResponse, len(subs)),
		TotalCount:    len(subs),
	}
	for i, sub := range subs {
		resp.Subscriptions[i] = subscriptionToResponse(sub)
	}

	writeJSON(w, http.StatusOK, resp)
}

// deleteSubscription handles DELETE /api/v1/subscriptions/{id}.
// Deactivation is idempotent: deleting an already inactive subscription is
// also a 204. Only unknown ids produce a 404.
func (s *Server) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an integer")
		return
	}

	if err := s.subs.Deactivate(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	s.jobs.Unregister(id)

	w.WriteHeader(http.StatusNoContent)
}

// listJobs handles GET /api/v1/subscriptions/jobs.
func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobs.Jobs()
	writeJSON(w, http.StatusOK, listJobsResponse{
		Jobs:       jobs,
		TotalCount: len(jobs),
	})
}

// listHistory handles GET /api/v1/history.
func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	filter := repository.HistoryFilter{}

	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		status := domain.DeliveryStatus(statusParam)
		filter.Status = &status
	}
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, parseErr := strconv.Atoi(limitParam); parseErr == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}
	if offsetParam := r.URL.Query().Get("offset"); offsetParam != "" {
		if parsed, parseErr := strconv.Atoi(offsetParam); parseErr == nil && parsed > 0 {
			filter.Offset = parsed
		}
	}

	records, totalCount, err := s.history.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := listHistoryResponse{
		Records:    make([]deliveryResponse, len(records)),
		TotalCount: totalCount,
	}
	for i, rec := range records {
		resp.Records[i] = deliveryToResponse(rec)
	}

	writeJSON(w, http.StatusOK, resp)
}

// historyStats handles GET /api/v1/history/stats.
func (s *Server) historyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.history.CountByStatus(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, historyStatsResponse{
		Total:   stats.Total,
		Success: stats.Success,
		Failed:  stats.Failed,
	})
}

// decodeDigestRequest parses and validates the shared {keyword, email} body.
func decodeDigestRequest(w http.ResponseWriter, r *http.Request) (digestRequest, bool) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return digestRequest{}, false
	}

	var req digestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return digestRequest{}, false
	}

	if err := domain.ValidateKeyword(req.Keyword); err != nil {
		writeDomainError(w, err)
		return digestRequest{}, false
	}
	if err := domain.ValidateEmail(req.Email); err != nil {
		writeDomainError(w, err)
		return digestRequest{}, false
	}

	return req, true
}

func deliveryToResponse(rec *domain.DeliveryRecord) deliveryResponse {
	return deliveryResponse{
		ID:           rec.ID,
		ScheduleID:   rec.ScheduleID,
		Keyword:      rec.Keyword,
		Recipient:    rec.Recipient,
		PaperCount:   rec.PaperCount,
		Status:       string(rec.Status),
		ErrorMessage: rec.ErrorMessage,
		SentAt:       rec.SentAt,
	}
}

func subscriptionToResponse(sub *domain.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:         sub.ID,
		Keyword:    sub.Keyword,
		Email:      sub.Email,
		Active:     sub.Active,
		CreatedAt:  sub.CreatedAt,
		LastSentAt: sub.LastSentAt,
	}
}

// writeDomainError maps domain errors to appropriate HTTP status codes and
// writes a JSON error response. Internal error details are not leaked.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var apiErr *domain.ExternalAPIError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrMisconfigured):
		writeError(w, http.StatusServiceUnavailable, "service misconfigured")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, "upstream service error")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
