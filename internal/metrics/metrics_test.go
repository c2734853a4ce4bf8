package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveAggregator(t *testing.T) {
	before := testutil.ToFloat64(AggregatorRequests.WithLabelValues("1inch", "ok"))
	ObserveAggregator("1inch", "ok", 20*time.Millisecond)
	ObserveAggregator("1inch", "ok", 0)
	assert.Equal(t, before+2, testutil.ToFloat64(AggregatorRequests.WithLabelValues("1inch", "ok")))
}

func TestHelpers(t *testing.T) {
	before := testutil.ToFloat64(QuoteCacheTotal.WithLabelValues("memory", "hit"))
	IncCache("memory", "hit")
	assert.Equal(t, before+1, testutil.ToFloat64(QuoteCacheTotal.WithLabelValues("memory", "hit")))

	now := time.Unix(1760000000, 0)
	SetLastSweep(now)
	assert.Equal(t, float64(now.Unix()), testutil.ToFloat64(LastSweepTimestamp))
}
