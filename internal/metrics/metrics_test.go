package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
		ObservePayment(time.Now(), nil)
		IncNotification("delivered")
	})
}

func TestObserveTransition(t *testing.T) {
	before := testutil.ToFloat64(bookingTransitions.WithLabelValues("approve", "error"))
	ObserveTransition("approve", errors.New("boom"))
	ObserveTransition("approve", nil)

	assert.Equal(t, before+1, testutil.ToFloat64(bookingTransitions.WithLabelValues("approve", "error")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(bookingTransitions.WithLabelValues("approve", "ok")), float64(1))
}
