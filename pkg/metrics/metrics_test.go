package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveWrite(t *testing.T) {
	const schema = "metrics test writes"

	ObserveWrite(schema, 10*time.Millisecond, nil)
	ObserveWrite(schema, 20*time.Millisecond, nil)
	ObserveWrite(schema, time.Millisecond, errors.New("Duplicate key not allowed"))

	assert.Equal(t, 2.0, testutil.ToFloat64(RecordsWritten.WithLabelValues(schema, StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(RecordsWritten.WithLabelValues(schema, StatusFailure)))
}

func TestObserveDiscovery(t *testing.T) {
	before := testutil.ToFloat64(SchemasDiscovered.WithLabelValues(StatusFailure))
	ObserveDiscovery(errors.New("bad module"))
	assert.Equal(t, before+1, testutil.ToFloat64(SchemasDiscovered.WithLabelValues(StatusFailure)))
}

func TestThroughputTracker(t *testing.T) {
	tracker := NewThroughputTracker("metrics test throughput", "read")
	tracker.Increment(50)
	time.Sleep(10 * time.Millisecond)

	rate := tracker.GetAndReset()
	assert.Greater(t, rate, 0.0)
	assert.Equal(t, rate, testutil.ToFloat64(Throughput.WithLabelValues("metrics test throughput", "read")))
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(time.Millisecond)
	assert.GreaterOrEqual(t, timer.Stop(), time.Millisecond)
}
