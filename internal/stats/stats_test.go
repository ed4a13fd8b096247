package stats_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"codeberg.org/mutker/anemone/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct{ depth, capacity, dropped int }

func (f fakeQueue) Len() int        { return f.depth }
func (f fakeQueue) Cap() int        { return f.capacity }
func (f fakeQueue) Dropped() uint64 { return uint64(f.dropped) }

func TestCounters(t *testing.T) {
	m := stats.New()

	m.PointsIngested.Add(3)
	m.Queries.WithLabelValues("get_reports").Inc()
	m.ProtocolErrors.WithLabelValues("ERROR: unknown report").Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.PointsIngested))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Queries.WithLabelValues("get_reports")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProtocolErrors.WithLabelValues("ERROR: unknown report")))
}

func TestIndependentRegistries(t *testing.T) {
	a, b := stats.New(), stats.New()
	a.PointsIngested.Inc()

	assert.Equal(t, 0.0, testutil.ToFloat64(b.PointsIngested))
}

func TestHandlerExposesQueue(t *testing.T) {
	m := stats.New()
	m.ObserveQueue(fakeQueue{depth: 2, capacity: 8, dropped: 5})
	m.ObserveQueue(fakeQueue{}) // second registration is ignored

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "anemone_ingest_queue_depth 2")
	assert.Contains(t, string(body), "anemone_ingest_queue_capacity 8")
	assert.Contains(t, string(body), "anemone_ingest_dropped_total 5")
}

func TestNewWithSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := stats.NewWith(prometheus.WrapRegistererWith(prometheus.Labels{"program": "solver"}, reg), reg)
	m.PointsIngested.Add(2)

	n, err := testutil.GatherAndCount(reg, "anemone_points_ingested_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `anemone_points_ingested_total{program="solver"} 2`)
}
