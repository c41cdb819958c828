package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rentdesk/internal/models"
)

const bookingColumns = `id, resource_id, renter_id, owner_id, start_at, end_at, total_price, status,
        delivery_method, pickup_location, delivery_code, rejection_reason, payment_ref,
        approved_at, paid_at, completed_at, cancelled_at,
        deposit_amount, deposit_reason, deposit_requested_at, deposit_paid_at, deposit_payment_ref,
        created_at, updated_at, version`

// liveStatusFilter matches the statuses that occupy the calendar.
const liveStatusFilter = `status IN ('pending_approval', 'approved', 'paid')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                                          models.Booking
		status, deliveryMethod                     string
		startAt, endAt, createdAt, updatedAt       int64
		approvedAt, paidAt, completedAt, cancelled sql.NullInt64
		depositAmount, depositRequested, depositPd sql.NullInt64
		depositReason, depositRef                  sql.NullString
	)

	err := row.Scan(
		&b.ID, &b.ResourceID, &b.RenterID, &b.OwnerID, &startAt, &endAt, &b.TotalPrice, &status,
		&deliveryMethod, &b.PickupLocation, &b.DeliveryCode, &b.RejectionReason, &b.PaymentRef,
		&approvedAt, &paidAt, &completedAt, &cancelled,
		&depositAmount, &depositReason, &depositRequested, &depositPd, &depositRef,
		&createdAt, &updatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}

	b.Status = models.BookingStatus(status)
	b.DeliveryMethod = models.DeliveryMethod(deliveryMethod)
	b.StartAt = fromUnix(startAt)
	b.EndAt = fromUnix(endAt)
	b.CreatedAt = fromUnix(createdAt)
	b.UpdatedAt = fromUnix(updatedAt)
	b.ApprovedAt = timePtr(approvedAt)
	b.PaidAt = timePtr(paidAt)
	b.CompletedAt = timePtr(completedAt)
	b.CancelledAt = timePtr(cancelled)

	if depositAmount.Valid {
		b.Deposit = &models.Deposit{
			Amount:      models.Money(depositAmount.Int64),
			Reason:      depositReason.String,
			RequestedAt: fromUnix(depositRequested.Int64),
			PaidAt:      timePtr(depositPd),
			PaymentRef:  depositRef.String,
		}
	}

	return &b, nil
}

func depositArgs(d *models.Deposit) []any {
	if d == nil {
		return []any{nil, nil, nil, nil, nil}
	}
	return []any{int64(d.Amount), d.Reason, toUnix(d.RequestedAt), nullUnix(d.PaidAt), d.PaymentRef}
}

// CreateBookingWithLock inserts the booking only if no live booking of the same
// resource overlaps its interval. Check and insert run in one immediate transaction.
func (db *DB) CreateBookingWithLock(ctx context.Context, booking *models.Booking) error {
	if err := booking.Validate(); err != nil {
		return fmt.Errorf("invalid booking: %w", err)
	}

	now := nowUTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	if booking.UpdatedAt.IsZero() {
		booking.UpdatedAt = booking.CreatedAt
	}
	booking.Version = 1

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		conflict, err := hasConflict(ctx, tx, booking.ResourceID, booking.StartAt, booking.EndAt, "")
		if err != nil {
			return err
		}
		if conflict {
			return ErrNotAvailable
		}

		args := []any{
			booking.ID, booking.ResourceID, booking.RenterID, booking.OwnerID,
			toUnix(booking.StartAt), toUnix(booking.EndAt), int64(booking.TotalPrice), string(booking.Status),
			string(booking.DeliveryMethod), booking.PickupLocation, booking.DeliveryCode,
			booking.RejectionReason, booking.PaymentRef,
			nullUnix(booking.ApprovedAt), nullUnix(booking.PaidAt), nullUnix(booking.CompletedAt), nullUnix(booking.CancelledAt),
		}
		args = append(args, depositArgs(booking.Deposit)...)
		args = append(args, toUnix(booking.CreatedAt), toUnix(booking.UpdatedAt), booking.Version)

		_, err = tx.ExecContext(ctx, `
            INSERT INTO bookings (`+bookingColumns+`)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			args...)
		if err != nil {
			return fmt.Errorf("failed to insert booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	db.logger.Debug().
		Str("booking_id", booking.ID).
		Int64("resource_id", booking.ResourceID).
		Msg("booking created")
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	booking, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// HasConflict reports whether a live booking of the resource overlaps [start, end).
// excludeID skips one booking, typically the one being re-checked.
func (db *DB) HasConflict(ctx context.Context, resourceID int64, start, end time.Time, excludeID string) (bool, error) {
	return hasConflict(ctx, db.DB, resourceID, start, end, excludeID)
}

func hasConflict(ctx context.Context, q queryer, resourceID int64, start, end time.Time, excludeID string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM bookings
        WHERE resource_id = ?
        AND `+liveStatusFilter+`
        AND start_at < ? AND end_at > ?
        AND id <> ?`,
		resourceID, toUnix(end), toUnix(start), excludeID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check conflicts: %w", err)
	}
	return count > 0, nil
}

// UpdateBookingWithVersion persists the mutable fields of booking if the stored
// row still has fromVersion and fromStatus. On success booking.Version is bumped.
func (db *DB) UpdateBookingWithVersion(ctx context.Context, booking *models.Booking, fromVersion int64, fromStatus models.BookingStatus) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return updateBooking(ctx, tx, booking, fromVersion, fromStatus)
	})
}

// ApproveBookingWithLock re-checks the calendar, excluding the booking itself,
// and moves it out of pending_approval in the same transaction.
func (db *DB) ApproveBookingWithLock(ctx context.Context, booking *models.Booking, fromVersion int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		conflict, err := hasConflict(ctx, tx, booking.ResourceID, booking.StartAt, booking.EndAt, booking.ID)
		if err != nil {
			return err
		}
		if conflict {
			return ErrNotAvailable
		}
		return updateBooking(ctx, tx, booking, fromVersion, models.StatusPendingApproval)
	})
}

func updateBooking(ctx context.Context, q queryer, booking *models.Booking, fromVersion int64, fromStatus models.BookingStatus) error {
	if err := booking.Validate(); err != nil {
		return fmt.Errorf("invalid booking: %w", err)
	}
	if booking.UpdatedAt.IsZero() {
		booking.UpdatedAt = nowUTC()
	}
	if err := checkPaymentRefs(ctx, q, booking); err != nil {
		return err
	}

	args := []any{
		string(booking.Status), string(booking.DeliveryMethod), booking.PickupLocation, booking.DeliveryCode,
		booking.RejectionReason, booking.PaymentRef,
		nullUnix(booking.ApprovedAt), nullUnix(booking.PaidAt), nullUnix(booking.CompletedAt), nullUnix(booking.CancelledAt),
	}
	args = append(args, depositArgs(booking.Deposit)...)
	args = append(args, toUnix(booking.UpdatedAt), booking.ID, fromVersion, string(fromStatus))

	result, err := q.ExecContext(ctx, `
        UPDATE bookings SET
            status = ?, delivery_method = ?, pickup_location = ?, delivery_code = ?,
            rejection_reason = ?, payment_ref = ?,
            approved_at = ?, paid_at = ?, completed_at = ?, cancelled_at = ?,
            deposit_amount = ?, deposit_reason = ?, deposit_requested_at = ?, deposit_paid_at = ?, deposit_payment_ref = ?,
            updated_at = ?, version = version + 1
        WHERE id = ? AND version = ? AND status = ?`,
		args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrPaymentRefUsed
		}
		return fmt.Errorf("failed to update booking: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrConcurrentModification
	}

	booking.Version = fromVersion + 1
	return nil
}

// checkPaymentRefs rejects a reference that already settled a rental or a deposit,
// on this booking or any other one.
func checkPaymentRefs(ctx context.Context, q queryer, booking *models.Booking) error {
	var refs []string
	if booking.PaymentRef != "" {
		refs = append(refs, booking.PaymentRef)
	}
	if booking.Deposit != nil && booking.Deposit.PaymentRef != "" {
		if booking.Deposit.PaymentRef == booking.PaymentRef {
			return ErrPaymentRefUsed
		}
		refs = append(refs, booking.Deposit.PaymentRef)
	}

	for _, ref := range refs {
		var found int
		err := q.QueryRowContext(ctx, `
            SELECT 1 FROM bookings
            WHERE id <> ? AND (payment_ref = ? OR deposit_payment_ref = ?)
            LIMIT 1`, booking.ID, ref, ref).Scan(&found)
		if err == nil {
			return ErrPaymentRefUsed
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check payment reference: %w", err)
		}
	}
	return nil
}

func (db *DB) GetRenterBookings(ctx context.Context, renterID int64) ([]*models.Booking, error) {
	return db.queryBookings(ctx, `
        SELECT `+bookingColumns+` FROM bookings
        WHERE renter_id = ?
        ORDER BY start_at DESC`, renterID)
}

// GetResourceBookings returns the live bookings of the resource that overlap [from, to).
func (db *DB) GetResourceBookings(ctx context.Context, resourceID int64, from, to time.Time) ([]*models.Booking, error) {
	return db.queryBookings(ctx, `
        SELECT `+bookingColumns+` FROM bookings
        WHERE resource_id = ?
        AND `+liveStatusFilter+`
        AND start_at < ? AND end_at > ?
        ORDER BY start_at`, resourceID, toUnix(to), toUnix(from))
}

// GetPaidBookingsEndedBefore lists paid bookings whose interval ended at or before the given time.
func (db *DB) GetPaidBookingsEndedBefore(ctx context.Context, before time.Time, limit int) ([]*models.Booking, error) {
	return db.queryBookings(ctx, `
        SELECT `+bookingColumns+` FROM bookings
        WHERE status = 'paid' AND end_at <= ?
        ORDER BY end_at
        LIMIT ?`, toUnix(before), limit)
}

func (db *DB) IsRenterOf(ctx context.Context, bookingID string, actorID int64) (bool, error) {
	var renterID int64
	err := db.QueryRowContext(ctx, `SELECT renter_id FROM bookings WHERE id = ?`, bookingID).Scan(&renterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrBookingNotFound
		}
		return false, fmt.Errorf("failed to get booking renter: %w", err)
	}
	return renterID == actorID, nil
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}
