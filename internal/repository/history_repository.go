package repository

import (
	"context"

	"github.com/mark2rocket/ag-studyletter/internal/domain"
)

// HistoryRepository handles the append-only digest delivery history.
// Every pipeline run produces exactly one record regardless of outcome;
// records are never updated or deleted.
type HistoryRepository interface {
	// Record inserts a delivery record and returns its assigned ID.
	// Returns domain.ErrInvalidInput if the record is malformed.
	Record(ctx context.Context, rec *domain.DeliveryRecord) (int64, error)

	// List retrieves delivery records matching the filter, most recent first.
	// Returns the matching records and the total count for pagination.
	// The total count reflects all matching records regardless of limit/offset.
	List(ctx context.Context, filter HistoryFilter) ([]*domain.DeliveryRecord, int64, error)

	// CountByStatus returns aggregate delivery counts.
	CountByStatus(ctx context.Context) (domain.HistoryStats, error)
}

// HistoryFilter specifies criteria for listing delivery records.
type HistoryFilter struct {
	// Status filters by delivery status (optional).
	Status *domain.DeliveryStatus

	// Limit specifies maximum number of results (default: 100, max: 1000).
	Limit int

	// Offset specifies the starting position for pagination.
	Offset int
}

// Validate checks filter values and applies pagination defaults.
// Returns domain.ErrInvalidInput for an unknown status.
func (f *HistoryFilter) Validate() error {
	if f.Status != nil && !domain.IsValidDeliveryStatus(*f.Status) {
		return domain.NewValidationError("status", "unknown delivery status: "+string(*f.Status))
	}

	applyPaginationDefaults(&f.Limit, &f.Offset)

	return nil
}
