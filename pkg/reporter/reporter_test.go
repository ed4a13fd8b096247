package reporter_test

import (
	"context"
	"math"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/mutker/anemone/internal/errors"
	"codeberg.org/mutker/anemone/pkg/inspector"
	"codeberg.org/mutker/anemone/pkg/protocol"
	"codeberg.org/mutker/anemone/pkg/reporter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startReporter(t *testing.T, r *reporter.Reporter, address string) *inspector.Client {
	t.Helper()
	require.NoError(t, r.Start(address))
	t.Cleanup(func() { assert.NoError(t, r.Stop()) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := inspector.Dial(ctx, r.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func timeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestReporterOverWebSocket(t *testing.T) {
	r := reporter.New("solver", "convergence")
	client := startReporter(t, r, "ws://127.0.0.1:0/")
	ctx := timeout(t)

	r.Report2DPlot("residual", 0, 1.0)
	r.Report2DPlot("residual", 1, 0.5)
	r.Report2DPlot("step", 0, 0.1)

	info, err := client.AnalysisInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.AnalysisInfo{Program: "solver", Analysis: "convergence", ReportCount: 2}, info)

	reports, err := client.Reports(ctx)
	require.NoError(t, err)
	assert.Equal(t, []protocol.ReportEntry{
		{Name: "residual", Kind: "2dplot"},
		{Name: "step", Kind: "2dplot"},
	}, reports)

	series, err := client.Report(ctx, "residual", 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, series.Xs)
	assert.Equal(t, []float64{0.5}, series.Ys)
}

func TestReporterOverZMQ(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := "tcp://" + ln.Addr().String()
	require.NoError(t, ln.Close())

	r := reporter.New("solver", "convergence")
	client := startReporter(t, r, address)
	ctx := timeout(t)

	for i := 0; i < 10; i++ {
		r.Report2DPlot("latency", float64(i), float64(i*i))
	}

	series, err := client.Report(ctx, "latency", 7)
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 8, 9}, series.Xs)
	assert.Equal(t, []float64{49, 64, 81}, series.Ys)

	_, err = client.Report(ctx, "nonexistent", 0)
	assert.True(t, inspector.IsServerError(err, protocol.ErrUnknownReport), "got %v", err)
}

func TestReportsBeforeStartAreKept(t *testing.T) {
	r := reporter.New("solver", "convergence")
	r.Report2DPlot("early", 1, 2)

	client := startReporter(t, r, "ws://127.0.0.1:0/")

	series, err := client.Report(timeout(t), "early", 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, series.Xs)
	assert.Equal(t, []float64{2}, series.Ys)
}

func TestStartTwice(t *testing.T) {
	r := reporter.New("solver", "convergence")
	startReporter(t, r, "ws://127.0.0.1:0/")

	err := r.Start("ws://127.0.0.1:0/")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, reporter.ErrAlreadyStarted))
}

func TestStartBindFailure(t *testing.T) {
	r := reporter.New("solver", "convergence")

	err := r.Start("udp://127.0.0.1:5556")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, reporter.ErrStartFailed))
	assert.Empty(t, r.Addr())

	// A failed bind leaves the reporter startable
	require.NoError(t, r.Start("ws://127.0.0.1:0/"))
	assert.NoError(t, r.Stop())
}

func TestStopWithoutStart(t *testing.T) {
	r := reporter.New("solver", "convergence")
	assert.NoError(t, r.Stop())
}

func TestReportAfterStopIsDropped(t *testing.T) {
	r := reporter.New("solver", "convergence")
	require.NoError(t, r.Start("ws://127.0.0.1:0/"))
	require.NoError(t, r.Stop())

	select {
	case <-r.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}

	assert.NotPanics(t, func() { r.Report2DPlot("late", 0, 0) })
	assert.Equal(t, uint64(1), r.Dropped())
	assert.NoError(t, r.Stop())
}

func TestQueueCapacityBoundsBacklog(t *testing.T) {
	r := reporter.New("solver", "convergence", reporter.WithQueueCapacity(2))

	for i := 0; i < 5; i++ {
		r.Report2DPlot("burst", float64(i), 0)
	}
	assert.Equal(t, uint64(3), r.Dropped())

	client := startReporter(t, r, "ws://127.0.0.1:0/")
	series, err := client.Report(timeout(t), "burst", 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, series.Xs)
}

func TestStartContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := reporter.New("solver", "convergence", reporter.WithStatsInterval(0))
	require.NoError(t, r.StartContext(ctx, "ws://127.0.0.1:0/"))

	cancel()
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop on cancel")
	}
	assert.NoError(t, r.Stop())
}

func TestWithRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := reporter.New("solver", "convergence", reporter.WithRegisterer(reg))
	client := startReporter(t, r, "ws://127.0.0.1:0/")

	r.Report2DPlot("residual", 0, 1)
	r.Report2DPlot("residual", 1, 0.5)
	_, err := client.Reports(timeout(t))
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "anemone_points_ingested_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec := httptest.NewRecorder()
	r.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `anemone_points_ingested_total{analysis="convergence",program="solver"} 2`)
}

func TestNonFiniteAndEmptyNames(t *testing.T) {
	r := reporter.New("solver", "convergence")
	client := startReporter(t, r, "ws://127.0.0.1:0/")
	ctx := timeout(t)

	r.Report2DPlot("", 1, 2)
	r.Report2DPlot("residual", 0, math.NaN())
	r.Report2DPlot("residual", 1, math.Inf(1))

	series, err := client.Report(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, series.Xs)
	assert.Equal(t, []float64{2}, series.Ys)

	series, err = client.Report(ctx, "residual", 0)
	require.NoError(t, err)
	require.Len(t, series.Ys, 2)
	assert.True(t, math.IsNaN(series.Ys[0]))
	assert.True(t, math.IsInf(series.Ys[1], 1))

	info, err := client.AnalysisInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, info.ReportCount)
}
