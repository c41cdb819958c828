package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingStatus_Transitions(t *testing.T) {
	all := []BookingStatus{
		StatusPendingApproval, StatusApproved, StatusRejected,
		StatusPaid, StatusCompleted, StatusCancelled,
	}
	allowed := map[BookingStatus][]BookingStatus{
		StatusPendingApproval: {StatusApproved, StatusRejected, StatusCancelled},
		StatusApproved:        {StatusPaid, StatusCancelled},
		StatusPaid:            {StatusCompleted},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	t.Run("Terminal", func(t *testing.T) {
		assert.True(t, StatusRejected.IsTerminal())
		assert.True(t, StatusCompleted.IsTerminal())
		assert.True(t, StatusCancelled.IsTerminal())
		assert.False(t, StatusPaid.IsTerminal())
		assert.True(t, BookingStatus("bogus").IsTerminal())
	})

	t.Run("Live", func(t *testing.T) {
		assert.True(t, StatusPendingApproval.IsLive())
		assert.True(t, StatusApproved.IsLive())
		assert.True(t, StatusPaid.IsLive())
		assert.False(t, StatusRejected.IsLive())
		assert.False(t, StatusCancelled.IsLive())
		assert.False(t, StatusCompleted.IsLive())
	})

	t.Run("Parse", func(t *testing.T) {
		s, err := ParseBookingStatus("paid")
		require.NoError(t, err)
		assert.Equal(t, StatusPaid, s)

		_, err = ParseBookingStatus("shipped")
		assert.Error(t, err)
	})
}

func TestBooking_Overlaps(t *testing.T) {
	day := func(n int) time.Time { return time.Date(2026, 3, 1+n, 0, 0, 0, 0, time.UTC) }
	b := &Booking{StartAt: day(0), EndAt: day(2)}

	assert.True(t, b.Overlaps(day(1), day(3)))
	assert.True(t, b.Overlaps(day(-1), day(5)))
	assert.False(t, b.Overlaps(day(2), day(3)), "return and pickup at the same instant do not conflict")
	assert.False(t, b.Overlaps(day(-2), day(0)))
}

func TestBooking_Validate(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	valid := func() *Booking {
		return &Booking{
			Status:     StatusPendingApproval,
			StartAt:    now,
			EndAt:      now.Add(48 * time.Hour),
			TotalPrice: 100,
		}
	}

	require.NoError(t, valid().Validate())

	t.Run("UnknownStatus", func(t *testing.T) {
		b := valid()
		b.Status = "lost"
		assert.Error(t, b.Validate())
	})

	t.Run("EmptyInterval", func(t *testing.T) {
		b := valid()
		b.EndAt = b.StartAt
		assert.Error(t, b.Validate())
	})

	t.Run("PickupWithoutLocation", func(t *testing.T) {
		b := valid()
		b.DeliveryMethod = DeliveryPickup
		assert.Error(t, b.Validate())
		b.PickupLocation = "Store 1"
		assert.NoError(t, b.Validate())
	})

	t.Run("RejectionReasonOnlyWhenRejected", func(t *testing.T) {
		b := valid()
		b.RejectionReason = "out of stock"
		assert.Error(t, b.Validate())
		b.Status = StatusRejected
		assert.NoError(t, b.Validate())
	})

	t.Run("PaidWithoutApproval", func(t *testing.T) {
		b := valid()
		b.PaidAt = &now
		assert.Error(t, b.Validate())
	})
}

func TestDeposit(t *testing.T) {
	requested := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var none *Deposit
	assert.False(t, none.Requested())
	assert.False(t, none.Paid())
	assert.NoError(t, none.Validate())

	d := &Deposit{Amount: 5000, Reason: "high-value item", RequestedAt: requested}
	assert.True(t, d.Requested())
	assert.False(t, d.Paid())
	assert.NoError(t, d.Validate())

	t.Run("NonPositiveAmount", func(t *testing.T) {
		assert.Error(t, (&Deposit{Amount: 0, RequestedAt: requested}).Validate())
	})

	t.Run("PaidBeforeRequested", func(t *testing.T) {
		early := requested.Add(-time.Hour)
		assert.Error(t, (&Deposit{Amount: 1, RequestedAt: requested, PaidAt: &early}).Validate())
	})

	t.Run("RefWithoutPayment", func(t *testing.T) {
		assert.Error(t, (&Deposit{Amount: 1, RequestedAt: requested, PaymentRef: "pay_1"}).Validate())
	})
}

func TestBooking_CloneIsDeep(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	orig := &Booking{
		ApprovedAt: &now,
		Deposit:    &Deposit{Amount: 10, RequestedAt: now, PaidAt: &now},
	}

	c := orig.Clone()
	later := now.Add(time.Hour)
	*c.ApprovedAt = later
	*c.Deposit.PaidAt = later
	c.Deposit.Amount = 20

	assert.Equal(t, now, *orig.ApprovedAt)
	assert.Equal(t, now, *orig.Deposit.PaidAt)
	assert.Equal(t, Money(10), orig.Deposit.Amount)
}

func TestMoney_String(t *testing.T) {
	assert.Equal(t, "50.00", Money(5000).String())
	assert.Equal(t, "0.05", Money(5).String())
	assert.Equal(t, "-1.50", Money(-150).String())
}

func TestReview_Validate(t *testing.T) {
	assert.NoError(t, (&Review{Rating: 5, Type: ReviewByRenter}).Validate())
	assert.Error(t, (&Review{Rating: 0, Type: ReviewByRenter}).Validate())
	assert.Error(t, (&Review{Rating: 6, Type: ReviewByOwner}).Validate())
	assert.Error(t, (&Review{Rating: 3, Type: "guest"}).Validate())
}
