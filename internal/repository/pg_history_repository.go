package repository

import (
	"context"
	"fmt"

	"github.com/mark2rocket/ag-studyletter/internal/domain"
)

// Compile-time interface verification.
var _ HistoryRepository = (*PgHistoryRepository)(nil)

// PgHistoryRepository is a PostgreSQL implementation of HistoryRepository.
type PgHistoryRepository struct {
	db DBTX
}

// NewPgHistoryRepository creates a new PostgreSQL history repository.
func NewPgHistoryRepository(db DBTX) *PgHistoryRepository {
	return &PgHistoryRepository{db: db}
}

// Record inserts a delivery record and returns its assigned ID.
func (r *PgHistoryRepository) Record(ctx context.Context, rec *domain.DeliveryRecord) (int64, error) {
	if rec == nil {
		return 0, domain.NewValidationError("record", "record cannot be nil")
	}
	if rec.Keyword == "" {
		return 0, domain.NewValidationError("keyword", "keyword is required")
	}
	if rec.Recipient == "" {
		return 0, domain.NewValidationError("recipient", "recipient is required")
	}
	if !domain.IsValidDeliveryStatus(rec.Status) {
		return 0, domain.NewValidationError("status", "unknown delivery status: "+string(rec.Status))
	}
	if rec.PaperCount < 0 {
		return 0, domain.NewValidationError("paper_count", "paper count cannot be negative")
	}

	query := `
		INSERT INTO email_history (
			schedule_id, keyword, recipient, paper_count,
			status, error_message, email_content, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	var id int64
	err := r.db.QueryRow(ctx, query,
		rec.ScheduleID, rec.Keyword, rec.Recipient, rec.PaperCount,
		rec.Status, rec.ErrorMessage, rec.EmailContent, rec.SentAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to record delivery: %w", err)
	}

	return id, nil
}

// List retrieves delivery records matching the filter, most recent first.
func (r *PgHistoryRepository) List(ctx context.Context, filter HistoryFilter) ([]*domain.DeliveryRecord, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	// Build dynamic WHERE clause
	whereClause := "TRUE"
	args := []interface{}{}
	argIndex := 1

	if filter.Status != nil {
		whereClause = fmt.Sprintf("status = $%d", argIndex)
		args = append(args, *filter.Status)
		argIndex++
	}

	// Count total matching records
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM email_history WHERE %s", whereClause)
	var totalCount int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count delivery records: %w", err)
	}

	// Query with pagination
	selectQuery := fmt.Sprintf(`
		SELECT id, schedule_id, keyword, recipient, paper_count,
			status, error_message, email_content, sent_at
		FROM email_history
		WHERE %s
		ORDER BY sent_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, whereClause, argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list delivery records: %w", err)
	}
	defer rows.Close()

	var records []*domain.DeliveryRecord
	for rows.Next() {
		rec, err := scanDeliveryRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan delivery record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate delivery records: %w", err)
	}

	return records, totalCount, nil
}

// CountByStatus returns aggregate delivery counts.
func (r *PgHistoryRepository) CountByStatus(ctx context.Context) (domain.HistoryStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'success'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM email_history`

	var stats domain.HistoryStats
	err := r.db.QueryRow(ctx, query).Scan(&stats.Total, &stats.Success, &stats.Failed)
	if err != nil {
		return domain.HistoryStats{}, fmt.Errorf("failed to count deliveries: %w", err)
	}

	return stats, nil
}

// scanDeliveryRecord scans an email_history row into a domain.DeliveryRecord.
func scanDeliveryRecord(row rowScanner) (*domain.DeliveryRecord, error) {
	var rec domain.DeliveryRecord
	err := row.Scan(
		&rec.ID,
		&rec.ScheduleID,
		&rec.Keyword,
		&rec.Recipient,
		&rec.PaperCount,
		&rec.Status,
		&rec.ErrorMessage,
		&rec.EmailContent,
		&rec.SentAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
