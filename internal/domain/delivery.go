package domain

import "time"

// DeliveryStatus is the terminal outcome of one pipeline run.
type DeliveryStatus string

// Delivery statuses. A run that found no papers or whose send failed is
// recorded as failed; last_sent on the subscription moves only on success.
const (
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
)

// IsValidDeliveryStatus reports whether s is a known delivery status.
func IsValidDeliveryStatus(s DeliveryStatus) bool {
	return s == DeliverySuccess || s == DeliveryFailed
}

// DeliveryRecord is one append-only entry in the delivery history.
// Exactly one record is written per pipeline run, regardless of outcome.
type DeliveryRecord struct {
	// ID is the primary key, assigned by the database on creation.
	ID int64

	// ScheduleID references the subscription that triggered the run,
	// nil for ad-hoc sends.
	ScheduleID *int64

	// Keyword is the search keyword of the run.
	Keyword string

	// Recipient is the delivery address of the run.
	Recipient string

	// PaperCount is the number of papers included in the digest.
	PaperCount int

	// Status is the run outcome.
	Status DeliveryStatus

	// ErrorMessage describes the failure, nil on success.
	ErrorMessage *string

	// EmailContent is the full formatted body. It is stored on success
	// and on send failure (for audit of what was attempted), nil when
	// no body was ever built.
	EmailContent *string

	// SentAt is when the run finished.
	SentAt time.Time
}

// HistoryStats aggregates delivery outcomes.
type HistoryStats struct {
	Total   int64
	Success int64
	Failed  int64
}
