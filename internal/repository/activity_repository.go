package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"sheetlens/internal/domain"
)

type ActivityRepository struct {
	db *sqlx.DB
}

func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Insert добавляет событие. Коллекция append-only: записанные события
// никогда не изменяются.
func (r *ActivityRepository) Insert(ctx context.Context, event *domain.ActivityEvent) error {
	query := `
        INSERT INTO activities (id, user_id, file_id, activity_type, timestamp, file_name, file_row_count, file_column_count)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.UserID,
		event.FileID,
		event.ActivityType,
		event.Timestamp,
		event.Filename,
		event.RowCount,
		event.ColumnCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}

	return nil
}

func (r *ActivityRepository) RecentByUser(ctx context.Context, userID string, limit int) ([]domain.ActivityEvent, error) {
	var events []domain.ActivityEvent
	query := `
        SELECT * FROM activities
        WHERE user_id = $1
        ORDER BY timestamp DESC
        LIMIT $2`

	err := r.db.SelectContext(ctx, &events, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent activities: %w", err)
	}

	return events, nil
}

// ListByUser возвращает все события пользователя, новые первыми.
func (r *ActivityRepository) ListByUser(ctx context.Context, userID string) ([]domain.ActivityEvent, error) {
	var events []domain.ActivityEvent
	query := `
        SELECT * FROM activities
        WHERE user_id = $1
        ORDER BY timestamp DESC`

	err := r.db.SelectContext(ctx, &events, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}

	return events, nil
}

func (r *ActivityRepository) CountByTypeSince(ctx context.Context, userID, activityType string, since time.Time) (int, error) {
	var count int
	query := `
        SELECT COUNT(*) FROM activities
        WHERE user_id = $1 AND activity_type = $2 AND timestamp >= $3`

	err := r.db.GetContext(ctx, &count, query, userID, activityType, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count activities: %w", err)
	}

	return count, nil
}

// DeleteByIDs удаляет события пачкой. Используется только обслуживающей
// операцией очистки дубликатов.
func (r *ActivityRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	query := `DELETE FROM activities WHERE id = ANY($1)`
	result, err := r.db.ExecContext(ctx, query, pq.Array(strIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to delete activities: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return int(rowsAffected), nil
}
