package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Recorder = (*PrometheusRecorder)(nil)
	_ Recorder = NoOpRecorder{}
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.ObserveSelection("Sales", SourceModel)
	r.ObserveSelection("Sales", SourceModel)
	r.ObserveSelection("Coordinator", SourceFallback)
	r.ObserveTermination(CauseCap)
	r.ObserveTurn("Sales", 120, time.Second, nil)
	r.ObserveTurn("Sales", 50, time.Second, errors.New("boom"))
	r.ObserveCompletion(2, 3*time.Second, nil)
	r.ObserveHTTP("GET", "/status", 200, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.selectionsTotal.WithLabelValues("Sales", SourceModel)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.selectionsTotal.WithLabelValues("Coordinator", SourceFallback)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.terminationsTotal.WithLabelValues(CauseCap)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.turnsTotal.WithLabelValues("Sales", "error")))
	assert.Equal(t, 120.0, testutil.ToFloat64(r.turnTokensTotal.WithLabelValues("Sales")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.completionsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.httpRequestsTotal.WithLabelValues("GET", "/status", "200")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestOrNoOp(t *testing.T) {
	assert.Equal(t, NoOpRecorder{}, OrNoOp(nil))

	r := NewPrometheusRecorder(prometheus.NewRegistry())
	assert.Same(t, r, OrNoOp(r))
}
