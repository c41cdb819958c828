package database

import (
	"context"
	"fmt"

	"rentdesk/internal/models"
)

func (db *DB) CreateReview(ctx context.Context, review *models.Review) error {
	if err := review.Validate(); err != nil {
		return fmt.Errorf("invalid review: %w", err)
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = nowUTC()
	}

	result, err := db.ExecContext(ctx, `
        INSERT INTO reviews (booking_id, author_id, rating, comment, type, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		review.BookingID, review.AuthorID, review.Rating, review.Comment, string(review.Type), toUnix(review.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReview
		}
		return fmt.Errorf("failed to insert review: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get review id: %w", err)
	}
	review.ID = id
	return nil
}

func (db *DB) GetBookingReviews(ctx context.Context, bookingID string) ([]*models.Review, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT id, booking_id, author_id, rating, comment, type, created_at
        FROM reviews WHERE booking_id = ?
        ORDER BY id`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*models.Review
	for rows.Next() {
		var (
			r         models.Review
			kind      string
			createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.BookingID, &r.AuthorID, &r.Rating, &r.Comment, &kind, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		r.Type = models.ReviewType(kind)
		r.CreatedAt = fromUnix(createdAt)
		reviews = append(reviews, &r)
	}
	return reviews, rows.Err()
}
