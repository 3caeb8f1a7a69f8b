package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mark2rocket/ag-studyletter/internal/domain"
)

// PostgreSQL error codes used for constraint violation detection.
const (
	pgUniqueViolation     = "23505" // unique_violation
	pgForeignKeyViolation = "23503" // foreign_key_violation
)

// Compile-time interface verification.
var _ SubscriptionRepository = (*PgSubscriptionRepository)(nil)

// PgSubscriptionRepository is a PostgreSQL implementation of SubscriptionRepository.
type PgSubscriptionRepository struct {
	db DBTX
}

// NewPgSubscriptionRepository creates a new PostgreSQL subscription repository.
func NewPgSubscriptionRepository(db DBTX) *PgSubscriptionRepository {
	return &PgSubscriptionRepository{db: db}
}

// Create inserts a new active subscription.
func (r *PgSubscriptionRepository) Create(ctx context.Context, keyword, email string) (*domain.Subscription, error) {
	if err := domain.ValidateKeyword(keyword); err != nil {
		return nil, err
	}
	if err := domain.ValidateEmail(email); err != nil {
		return nil, err
	}

	normalized := domain.NormalizeKeyword(keyword)

	query := `
		INSERT INTO schedules (keyword, email)
		VALUES ($1, $2)
		RETURNING id, keyword, email, is_active, created_at, last_sent`

	row := r.db.QueryRow(ctx, query, normalized, email)
	sub, err := scanSubscription(row)
	if err != nil {
		if isPgUniqueViolation(err) {
			return nil, domain.NewAlreadyExistsError("subscription", normalized+"/"+email)
		}
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	return sub, nil
}

// GetByID retrieves a subscription by its ID.
func (r *PgSubscriptionRepository) GetByID(ctx context.Context, id int64) (*domain.Subscription, error) {
	query := `
		SELECT id, keyword, email, is_active, created_at, last_sent
		FROM schedules
		WHERE id = $1`

	row := r.db.QueryRow(ctx, query, id)
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("subscription", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return sub, nil
}

// ListActive retrieves all active subscriptions ordered by creation time.
func (r *PgSubscriptionRepository) ListActive(ctx context.Context) ([]*domain.Subscription, error) {
	query := `
		SELECT id, keyword, email, is_active, created_at, last_sent
		FROM schedules
		WHERE is_active
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}

	return subs, nil
}

// Deactivate clears the active flag on a subscription. The update matches the
// row regardless of its current flag, so repeated calls are no-ops rather
// than errors.
func (r *PgSubscriptionRepository) Deactivate(ctx context.Context, id int64) error {
	query := `UPDATE schedules SET is_active = FALSE WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("subscription", strconv.FormatInt(id, 10))
	}

	return nil
}

// MarkSent records the time of the latest successful delivery.
func (r *PgSubscriptionRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	query := `UPDATE schedules SET last_sent = $2 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, sentAt)
	if err != nil {
		return fmt.Errorf("failed to mark subscription sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("subscription", strconv.FormatInt(id, 10))
	}

	return nil
}

// rowScanner abstracts pgx.Row and pgx.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSubscription scans a schedules row into a domain.Subscription.
func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.Keyword,
		&sub.Email,
		&sub.Active,
		&sub.CreatedAt,
		&sub.LastSentAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// isPgUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}
