package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rentdesk/internal/models"
)

// CreateNotificationTask stores a pending notification in the outbox.
func (db *DB) CreateNotificationTask(ctx context.Context, task *models.NotificationTask) error {
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = nowUTC()
	}

	result, err := db.ExecContext(ctx, `
        INSERT INTO notification_queue (user_id, event_type, booking_id, status, retry_count, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		task.UserID, task.EventType, task.BookingID, task.Status, task.RetryCount, toUnix(task.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create notification task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get notification task id: %w", err)
	}
	task.ID = id
	return nil
}

const notificationColumns = `id, user_id, event_type, booking_id, status, retry_count, last_error, created_at, processed_at, next_retry_at`

func scanNotificationTask(row rowScanner) (*models.NotificationTask, error) {
	var (
		t                      models.NotificationTask
		lastError              sql.NullString
		createdAt              int64
		processedAt, nextRetry sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.EventType, &t.BookingID, &t.Status, &t.RetryCount,
		&lastError, &createdAt, &processedAt, &nextRetry); err != nil {
		return nil, err
	}
	if lastError.Valid {
		t.LastError = &lastError.String
	}
	t.CreatedAt = fromUnix(createdAt)
	t.ProcessedAt = timePtr(processedAt)
	t.NextRetryAt = timePtr(nextRetry)
	return &t, nil
}

func (db *DB) GetNotificationTask(ctx context.Context, id int64) (*models.NotificationTask, error) {
	row := db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notification_queue WHERE id = ?`, id)
	task, err := scanNotificationTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotificationTaskNotFound
		}
		return nil, fmt.Errorf("failed to get notification task: %w", err)
	}
	return task, nil
}

// GetPendingNotificationTasks returns pending tasks and retry tasks whose backoff has elapsed.
func (db *DB) GetPendingNotificationTasks(ctx context.Context, now time.Time, limit int) ([]models.NotificationTask, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT `+notificationColumns+`
        FROM notification_queue
        WHERE status = ?
           OR (status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?))
        ORDER BY created_at, id
        LIMIT ?`,
		models.TaskStatusPending, models.TaskStatusRetry, toUnix(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.NotificationTask
	for rows.Next() {
		t, err := scanNotificationTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// UpdateNotificationTaskStatus records the outcome of a delivery attempt.
func (db *DB) UpdateNotificationTaskStatus(ctx context.Context, id int64, status string, retryCount int, lastError string, nextRetryAt *time.Time) error {
	var errVal any
	if lastError != "" {
		errVal = lastError
	}

	var processedAt sql.NullInt64
	if status == models.TaskStatusCompleted || status == models.TaskStatusFailed {
		processedAt = sql.NullInt64{Int64: toUnix(nowUTC()), Valid: true}
	}

	_, err := db.ExecContext(ctx, `
        UPDATE notification_queue
        SET status = ?, retry_count = ?, last_error = ?, next_retry_at = ?, processed_at = ?
        WHERE id = ?`,
		status, retryCount, errVal, nullUnix(nextRetryAt), processedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update notification task: %w", err)
	}
	return nil
}
