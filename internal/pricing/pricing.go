package pricing

import (
	"errors"
	"math"
	"time"

	"rentdesk/internal/models"
)

const secondsPerDay = int64(models.HoursPerDay) * 60 * 60

// ErrOverflow is returned when the total does not fit into Money.
var ErrOverflow = errors.New("price overflows")

// Days returns the number of billable days for [start, end): whole days rounded up, at least one.
// Counting is done on unix seconds so intervals longer than time.Duration can hold stay exact.
func Days(start, end time.Time) int64 {
	secs := end.Unix() - start.Unix()
	if secs <= 0 {
		return 1
	}
	days := secs / secondsPerDay
	if secs%secondsPerDay != 0 {
		days++
	}
	return days
}

// Price computes unitPrice * Days(start, end). Interval validity is checked by the caller.
func Price(unitPrice models.Money, start, end time.Time) (models.Money, error) {
	days := Days(start, end)
	if unitPrice > 0 && int64(unitPrice) > math.MaxInt64/days {
		return 0, ErrOverflow
	}
	return unitPrice * models.Money(days), nil
}
