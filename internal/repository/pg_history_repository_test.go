package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark2rocket/ag-studyletter/internal/domain"
)

var historyColumns = []string{
	"id", "schedule_id", "keyword", "recipient", "paper_count",
	"status", "error_message", "email_content", "sent_at",
}

func newTestDeliveryRecord() *domain.DeliveryRecord {
	content := "digest body"
	return &domain.DeliveryRecord{
		Keyword:      "transformer",
		Recipient:    "reader@example.com",
		PaperCount:   3,
		Status:       domain.DeliverySuccess,
		EmailContent: &content,
		SentAt:       time.Now().UTC(),
	}
}

func TestPgHistoryRepository_Record(t *testing.T) {
	ctx := context.Background()

	t.Run("records delivery and returns id", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)
		rec := newTestDeliveryRecord()

		mock.ExpectQuery("INSERT INTO email_history").
			WithArgs(rec.ScheduleID, rec.Keyword, rec.Recipient, rec.PaperCount,
				rec.Status, rec.ErrorMessage, rec.EmailContent, rec.SentAt).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))

		id, err := repo.Record(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, int64(11), id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("records failed delivery with error message", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)
		rec := newTestDeliveryRecord()
		rec.Status = domain.DeliveryFailed
		msg := "smtp connect: connection refused"
		rec.ErrorMessage = &msg

		mock.ExpectQuery("INSERT INTO email_history").
			WithArgs(rec.ScheduleID, rec.Keyword, rec.Recipient, rec.PaperCount,
				rec.Status, rec.ErrorMessage, rec.EmailContent, rec.SentAt).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(12)))

		id, err := repo.Record(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, int64(12), id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns validation error for nil record", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)
		_, err = repo.Record(ctx, nil)

		var validationErr *domain.ValidationError
		assert.True(t, errors.As(err, &validationErr))
		assert.Equal(t, "record", validationErr.Field)
	})

	t.Run("returns validation error for unknown status", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)
		rec := newTestDeliveryRecord()
		rec.Status = domain.DeliveryStatus("pending")

		_, err = repo.Record(ctx, rec)

		var validationErr *domain.ValidationError
		assert.True(t, errors.As(err, &validationErr))
		assert.Equal(t, "status", validationErr.Field)
	})

	t.Run("returns validation error for negative paper count", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)
		rec := newTestDeliveryRecord()
		rec.PaperCount = -1

		_, err = repo.Record(ctx, rec)

		var validationErr *domain.ValidationError
		assert.True(t, errors.As(err, &validationErr))
		assert.Equal(t, "paper_count", validationErr.Field)
	})

	t.Run("wraps database errors", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)
		rec := newTestDeliveryRecord()

		mock.ExpectQuery("INSERT INTO email_history").
			WithArgs(rec.ScheduleID, rec.Keyword, rec.Recipient, rec.PaperCount,
				rec.Status, rec.ErrorMessage, rec.EmailContent, rec.SentAt).
			WillReturnError(errors.New("database error"))

		_, err = repo.Record(ctx, rec)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgHistoryRepository_List(t *testing.T) {
	ctx := context.Background()

	t.Run("lists records with total count", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)
		now := time.Now().UTC()

		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM email_history").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))

		rows := pgxmock.NewRows(historyColumns).
			AddRow(int64(2), (*int64)(nil), "transformer", "a@example.com", 3,
				domain.DeliverySuccess, (*string)(nil), (*string)(nil), now).
			AddRow(int64(1), (*int64)(nil), "diffusion", "b@example.com", 0,
				domain.DeliveryFailed, (*string)(nil), (*string)(nil), now.Add(-time.Hour))
		mock.ExpectQuery("SELECT .* FROM email_history").
			WithArgs(100, 0).
			WillReturnRows(rows)

		records, total, err := repo.List(ctx, HistoryFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, records, 2)
		assert.Equal(t, int64(2), records[0].ID)
		assert.Equal(t, domain.DeliveryFailed, records[1].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("filters by status", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)
		status := domain.DeliveryFailed

		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM email_history WHERE status").
			WithArgs(status).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))

		rows := pgxmock.NewRows(historyColumns).
			AddRow(int64(5), (*int64)(nil), "diffusion", "b@example.com", 0,
				domain.DeliveryFailed, (*string)(nil), (*string)(nil), time.Now().UTC())
		mock.ExpectQuery("SELECT .* FROM email_history WHERE status").
			WithArgs(status, 100, 0).
			WillReturnRows(rows)

		records, total, err := repo.List(ctx, HistoryFilter{Status: &status})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, records, 1)
		assert.Equal(t, domain.DeliveryFailed, records[0].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("applies explicit pagination", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)

		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM email_history").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(50)))
		mock.ExpectQuery("SELECT .* FROM email_history").
			WithArgs(10, 20).
			WillReturnRows(pgxmock.NewRows(historyColumns))

		records, total, err := repo.List(ctx, HistoryFilter{Limit: 10, Offset: 20})
		require.NoError(t, err)
		assert.Equal(t, int64(50), total)
		assert.Empty(t, records)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)
		status := domain.DeliveryStatus("bogus")

		_, _, err = repo.List(ctx, HistoryFilter{Status: &status})

		var validationErr *domain.ValidationError
		assert.True(t, errors.As(err, &validationErr))
		assert.Equal(t, "status", validationErr.Field)
	})

	t.Run("wraps count query errors", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)

		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM email_history").
			WillReturnError(errors.New("database error"))

		_, _, err = repo.List(ctx, HistoryFilter{})
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPgHistoryRepository_CountByStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("returns aggregate counts", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)

		mock.ExpectQuery("SELECT").
			WillReturnRows(pgxmock.NewRows([]string{"total", "success", "failed"}).
				AddRow(int64(10), int64(8), int64(2)))

		stats, err := repo.CountByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(10), stats.Total)
		assert.Equal(t, int64(8), stats.Success)
		assert.Equal(t, int64(2), stats.Failed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps database errors", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgHistoryRepository(mock)

		mock.ExpectQuery("SELECT").
			WillReturnError(errors.New("database error"))

		_, err = repo.CountByStatus(ctx)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
