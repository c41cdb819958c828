package models

import (
	"fmt"
	"time"
)

type BookingStatus string

const (
	StatusPendingApproval BookingStatus = "pending_approval"
	StatusApproved        BookingStatus = "approved"
	StatusRejected        BookingStatus = "rejected"
	StatusPaid            BookingStatus = "paid"
	StatusCompleted       BookingStatus = "completed"
	StatusCancelled       BookingStatus = "cancelled"
)

// transitions lists the target statuses reachable from each status.
var transitions = map[BookingStatus][]BookingStatus{
	StatusPendingApproval: {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:        {StatusPaid, StatusCancelled},
	StatusPaid:            {StatusCompleted},
	StatusRejected:        {},
	StatusCompleted:       {},
	StatusCancelled:       {},
}

// LiveStatuses are the statuses that occupy the resource calendar.
var LiveStatuses = []BookingStatus{StatusPendingApproval, StatusApproved, StatusPaid}

func (s BookingStatus) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

func (s BookingStatus) IsTerminal() bool {
	next, ok := transitions[s]
	return !ok || len(next) == 0
}

func (s BookingStatus) IsLive() bool {
	for _, live := range LiveStatuses {
		if s == live {
			return true
		}
	}
	return false
}

func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

func (s BookingStatus) String() string {
	return string(s)
}

func ParseBookingStatus(raw string) (BookingStatus, error) {
	status := BookingStatus(raw)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %q", raw)
	}
	return status, nil
}

type DeliveryMethod string

const (
	DeliveryPickup   DeliveryMethod = "pickup"
	DeliveryShipping DeliveryMethod = "shipping"
)

func (m DeliveryMethod) IsValid() bool {
	return m == DeliveryPickup || m == DeliveryShipping
}

// Deposit is the optional hold requested by the resource owner on top of the rental price.
// A deposit exists only once requested; it is paid when PaidAt is set.
type Deposit struct {
	Amount      Money      `json:"amount"`
	Reason      string     `json:"reason"`
	RequestedAt time.Time  `json:"requested_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	PaymentRef  string     `json:"payment_ref,omitempty"`
}

func (d *Deposit) Requested() bool {
	return d != nil
}

func (d *Deposit) Paid() bool {
	return d != nil && d.PaidAt != nil
}

// Validate checks the combination invariants of the deposit record.
func (d *Deposit) Validate() error {
	if d == nil {
		return nil
	}
	if d.Amount <= 0 {
		return fmt.Errorf("deposit amount must be positive, got %s", d.Amount)
	}
	if d.RequestedAt.IsZero() {
		return fmt.Errorf("deposit requested_at is not set")
	}
	if d.PaidAt != nil && d.PaidAt.Before(d.RequestedAt) {
		return fmt.Errorf("deposit paid_at precedes requested_at")
	}
	if d.PaidAt == nil && d.PaymentRef != "" {
		return fmt.Errorf("deposit payment_ref set on unpaid deposit")
	}
	return nil
}

type Booking struct {
	ID              string         `json:"id"`
	ResourceID      int64          `json:"resource_id"`
	RenterID        int64          `json:"renter_id"`
	OwnerID         int64          `json:"owner_id"`
	StartAt         time.Time      `json:"start_at"`
	EndAt           time.Time      `json:"end_at"`
	TotalPrice      Money          `json:"total_price"`
	Status          BookingStatus  `json:"status"`
	DeliveryMethod  DeliveryMethod `json:"delivery_method,omitempty"`
	PickupLocation  string         `json:"pickup_location,omitempty"`
	DeliveryCode    string         `json:"delivery_code,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	PaymentRef      string         `json:"payment_ref,omitempty"`
	ApprovedAt      *time.Time     `json:"approved_at,omitempty"`
	PaidAt          *time.Time     `json:"paid_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	CancelledAt     *time.Time     `json:"cancelled_at,omitempty"`
	Deposit         *Deposit       `json:"deposit,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	Version         int64          `json:"version"`
}

// Overlaps reports whether the half-open intervals [StartAt, EndAt) and [start, end) intersect.
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartAt.Before(end) && start.Before(b.EndAt)
}

// Clone returns a deep copy so transitions can be computed without touching the original.
func (b *Booking) Clone() *Booking {
	c := *b
	c.ApprovedAt = cloneTime(b.ApprovedAt)
	c.PaidAt = cloneTime(b.PaidAt)
	c.CompletedAt = cloneTime(b.CompletedAt)
	c.CancelledAt = cloneTime(b.CancelledAt)
	if b.Deposit != nil {
		d := *b.Deposit
		d.PaidAt = cloneTime(b.Deposit.PaidAt)
		c.Deposit = &d
	}
	return &c
}

// Validate checks the record-level invariants before every write.
func (b *Booking) Validate() error {
	if !b.Status.IsValid() {
		return fmt.Errorf("invalid booking status: %q", b.Status)
	}
	if !b.StartAt.Before(b.EndAt) {
		return fmt.Errorf("booking start %s is not before end %s", b.StartAt.Format(time.RFC3339), b.EndAt.Format(time.RFC3339))
	}
	if b.TotalPrice < 0 {
		return fmt.Errorf("negative total price %s", b.TotalPrice)
	}
	if b.DeliveryMethod != "" && !b.DeliveryMethod.IsValid() {
		return fmt.Errorf("invalid delivery method: %q", b.DeliveryMethod)
	}
	if b.DeliveryMethod == DeliveryPickup && b.PickupLocation == "" {
		return fmt.Errorf("pickup location is required for pickup delivery")
	}
	if b.RejectionReason != "" && b.Status != StatusRejected {
		return fmt.Errorf("rejection reason set on %s booking", b.Status)
	}
	if b.PaidAt != nil && b.ApprovedAt == nil {
		return fmt.Errorf("paid booking was never approved")
	}
	return b.Deposit.Validate()
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
