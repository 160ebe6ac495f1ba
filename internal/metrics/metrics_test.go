package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestCounters(t *testing.T) {
	before := counterValue(t, bookingAttempts.WithLabelValues("slot_taken"))
	IncBookAttempt("slot_taken")
	assert.Equal(t, before+1, counterValue(t, bookingAttempts.WithLabelValues("slot_taken")))

	before = counterValue(t, httpRequests.WithLabelValues("GET /x", "4xx"))
	ObserveHTTP("GET /x", 409, 10*time.Millisecond)
	assert.Equal(t, before+1, counterValue(t, httpRequests.WithLabelValues("GET /x", "4xx")))

	IncCache("slots", true)
	assert.Equal(t, 1.0, counterValue(t, cacheLookups.WithLabelValues("slots", "hit")))
}

func TestStatusClass(t *testing.T) {
	tests := map[int]string{200: "2xx", 201: "2xx", 304: "3xx", 404: "4xx", 429: "4xx", 503: "5xx"}
	for code, want := range tests {
		assert.Equal(t, want, statusClass(code), code)
	}
}
