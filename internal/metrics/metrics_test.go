package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	assert.NotNil(t, collector, "NewCollector should return a non-nil collector")
	assert.NotNil(t, collector.solves, "solves counter should be initialized")
	assert.NotNil(t, collector.solveDuration, "solveDuration histogram should be initialized")
	assert.NotNil(t, collector.simulations, "simulations counter should be initialized")
	assert.NotNil(t, collector.modifications, "modifications counter should be initialized")
	assert.NotNil(t, collector.inFlight, "inFlight gauge should be initialized")
}

func TestNewCollectorDefaultRegisterer(t *testing.T) {
	// Reset Prometheus registry to avoid duplicate registration
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	assert.NotPanics(t, func() {
		NewCollector(nil)
	})
}

func TestRecordSolve(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	collector.RecordSolve("OPTIMAL", 0.02, 120, 4)
	collector.RecordSolve("OPTIMAL", 0.05, 30, 1)
	collector.RecordSolve("INFEASIBLE", 0.01, 0, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.solves.WithLabelValues("OPTIMAL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.solves.WithLabelValues("INFEASIBLE")))
	assert.Equal(t, 150.0, testutil.ToFloat64(collector.branches))
	assert.Equal(t, 6.0, testutil.ToFloat64(collector.conflicts))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.solveDuration))
}

func TestSetSchedule(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	collector.SetSchedule(100, 10)
	collector.SetSchedule(90, 0)

	assert.Equal(t, 90.0, testutil.ToFloat64(collector.lastMakespan))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.lastTardiness))
}

func TestRecordSimulationAndModifications(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	testCases := []struct {
		kind    string
		outcome string
	}{
		{"delay_order", "applied"},
		{"task_move", "skipped"},
		{"task_move", "applied"},
		{"task_move", "skipped"},
	}
	for _, tc := range testCases {
		collector.RecordModification(tc.kind, tc.outcome)
	}
	collector.RecordSimulation("success")
	collector.RecordSimulation("error")

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.modifications.WithLabelValues("task_move", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.modifications.WithLabelValues("delay_order", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.simulations.WithLabelValues("error")))
}

func TestConcurrentMetricUpdates(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	// Prometheus metrics are safe for concurrent use
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.SolveStarted()
			collector.RecordSolve("FEASIBLE", 0.1, 1, 0)
			collector.SolveFinished()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100.0, testutil.ToFloat64(collector.solves.WithLabelValues("FEASIBLE")))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.inFlight))
}

func TestCollectorIsolation(t *testing.T) {
	reg := prometheus.NewRegistry()

	collector1 := NewCollector(reg)
	require.NotNil(t, collector1)

	// Registering the same metric names twice on one registry panics
	assert.Panics(t, func() {
		NewCollector(reg)
	}, "Creating a second collector on the same registry should panic")

	// A separate registry is fine
	assert.NotPanics(t, func() {
		NewCollector(prometheus.NewRegistry())
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollector(reg)
	collector.RecordSolve("OPTIMAL", 0.5, 3, 0)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `planner_solves_total{status="OPTIMAL"} 1`)
	assert.Contains(t, string(body), "planner_search_branches_total 3")
}
