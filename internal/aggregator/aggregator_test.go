package aggregator

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/anemone/internal/endpoint"
	"codeberg.org/mutker/anemone/internal/queue"
	"codeberg.org/mutker/anemone/internal/report"
	"codeberg.org/mutker/anemone/pkg/protocol"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	queue    *queue.Queue[Message]
	endpoint *endpoint.Memory
	agg      *Aggregator
}

func startLoop(t *testing.T, capacity int) *harness {
	t.Helper()

	q, err := queue.New[Message](capacity)
	require.NoError(t, err)
	ep := endpoint.NewMemory()
	agg := New(Config{Program: "prog", Analysis: "analysis"}, q, ep, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agg.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
		ep.Close()
	})

	return &harness{queue: q, endpoint: ep, agg: agg}
}

func (h *harness) push(name string, x, y float64) {
	h.queue.Push(Message{Name: name, Kind: report.TwoDPlot, Point: report.Point{X: x, Y: y}})
}

func (h *harness) raw(t *testing.T, frame string) *protocol.Response {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := h.endpoint.Do(ctx, []byte(frame))
	require.NoError(t, err)
	resp, err := protocol.DecodeResponse(reply)
	require.NoError(t, err)
	return resp
}

func (h *harness) query(t *testing.T, args ...any) *protocol.Response {
	t.Helper()

	frame, err := protocol.EncodeRequest(protocol.NewRequest(args...))
	require.NoError(t, err)
	return h.raw(t, string(frame))
}

func requireSeries(t *testing.T, resp *protocol.Response, xs, ys []float64) {
	t.Helper()
	require.Equal(t, protocol.KindReport, resp.Kind, "error: %s", resp.Error)
	assert.Equal(t, xs, resp.Series.Xs)
	assert.Equal(t, ys, resp.Series.Ys)
}

func requireError(t *testing.T, resp *protocol.Response, msg string) {
	t.Helper()
	require.Equal(t, protocol.KindError, resp.Kind)
	assert.Equal(t, msg, resp.Error)
}

func TestIncrementalReportSlices(t *testing.T) {
	h := startLoop(t, 64)
	h.push("latency", 1, 100)
	h.push("latency", 2, 150)

	requireSeries(t, h.query(t, "get_report", "latency", 0), []float64{1, 2}, []float64{100, 150})
	requireSeries(t, h.query(t, "get_report", "latency", 1), []float64{2}, []float64{150})
}

func TestReportListingOrder(t *testing.T) {
	h := startLoop(t, 64)

	resp := h.query(t, "get_reports")
	require.Equal(t, protocol.KindReports, resp.Kind)
	assert.Empty(t, resp.Reports)

	h.push("a", 0, 0)
	h.push("b", 0, 0)
	h.push("a", 1, 1)

	resp = h.query(t, "get_reports")
	require.Equal(t, protocol.KindReports, resp.Kind)
	assert.Equal(t, []protocol.ReportEntry{
		{Name: "a", Kind: "2dplot"},
		{Name: "b", Kind: "2dplot"},
	}, resp.Reports)
}

func TestAnalysisInfoCountsReports(t *testing.T) {
	h := startLoop(t, 64)

	resp := h.query(t, "get_analysis_info")
	require.Equal(t, protocol.KindAnalysisInfo, resp.Kind)
	assert.Equal(t, protocol.AnalysisInfo{Program: "prog", Analysis: "analysis", ReportCount: 0}, *resp.Info)

	h.push("new", 1, 1)

	resp = h.query(t, "get_analysis_info")
	require.Equal(t, protocol.KindAnalysisInfo, resp.Kind)
	assert.Equal(t, 1, resp.Info.ReportCount)
}

func TestStartBeyondEndIsEmpty(t *testing.T) {
	h := startLoop(t, 64)
	h.push("latency", 1, 100)
	h.push("latency", 2, 150)

	for _, start := range []int{2, 3, 1000} {
		requireSeries(t, h.query(t, "get_report", "latency", start), []float64{}, []float64{})
	}
}

func TestUnknownReport(t *testing.T) {
	h := startLoop(t, 64)
	h.push("latency", 1, 100)

	requireError(t, h.query(t, "get_report", "nonexistent", 0), protocol.ErrUnknownReport)
	requireError(t, h.query(t, "get_report", 17, 0), protocol.ErrUnknownReport)
	// name is checked before the index
	requireError(t, h.query(t, "get_report", "nonexistent", "abc"), protocol.ErrUnknownReport)
}

func TestMalformedStartIndex(t *testing.T) {
	h := startLoop(t, 64)
	h.push("latency", 1, 100)

	for _, start := range []any{-1, "abc", 1.5, nil, true, []any{0}} {
		requireError(t, h.query(t, "get_report", "latency", start), protocol.ErrMalformedStartIndex)
	}
}

func TestStartIndexMustBeIntegerLiteral(t *testing.T) {
	h := startLoop(t, 64)
	h.push("latency", 1, 100)

	for _, frame := range []string{
		`{"version":1,"args":["get_report","latency",0.0]}`,
		`{"version":1,"args":["get_report","latency",1e0]}`,
	} {
		requireError(t, h.raw(t, frame), protocol.ErrMalformedStartIndex)
	}
	requireSeries(t, h.raw(t, `{"version":1,"args":["get_report","latency",0]}`), []float64{1}, []float64{100})
}

func TestNonFinitePointsStayQueryable(t *testing.T) {
	h := startLoop(t, 64)
	h.push("residual", 1, 0.5)
	h.push("residual", 2, math.NaN())
	h.push("residual", 3, math.Inf(1))
	h.push("residual", math.Inf(-1), 4)

	resp := h.query(t, "get_report", "residual", 0)
	require.Equal(t, protocol.KindReport, resp.Kind, "error: %s", resp.Error)
	require.Len(t, resp.Series.Ys, 4)
	assert.Equal(t, []float64{0.5}, resp.Series.Ys[:1])
	assert.True(t, math.IsNaN(resp.Series.Ys[1]))
	assert.True(t, math.IsInf(resp.Series.Ys[2], 1))
	assert.True(t, math.IsInf(resp.Series.Xs[3], -1))

	// later slices and other reports are unaffected
	requireSeries(t, h.query(t, "get_report", "residual", 3), []float64{math.Inf(-1)}, []float64{4})
	h.push("residual", 5, 1)
	requireSeries(t, h.query(t, "get_report", "residual", 4), []float64{5}, []float64{1})
	assert.Equal(t, 0.0, testutil.ToFloat64(h.agg.metrics.ProtocolErrors.WithLabelValues(protocol.ErrInternal)))
}

func TestEmptyReportName(t *testing.T) {
	h := startLoop(t, 64)
	h.push("", 1, 2)

	requireSeries(t, h.query(t, "get_report", "", 0), []float64{1}, []float64{2})

	resp := h.query(t, "get_analysis_info")
	require.Equal(t, protocol.KindAnalysisInfo, resp.Kind)
	assert.Equal(t, 1, resp.Info.ReportCount)
}

func TestEmptyListingCarriesReports(t *testing.T) {
	h := startLoop(t, 64)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := h.endpoint.Do(ctx, []byte(`{"version":1,"args":["get_reports"]}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"kind":"reports","reports":[]}`, string(reply))
}

func TestUnknownCommand(t *testing.T) {
	h := startLoop(t, 64)
	h.push("latency", 1, 100)

	frames := []string{
		`{"version":1,"args":[]}`,
		`{"version":1,"args":null}`,
		`{"version":1}`,
		`{"version":1,"args":"get_reports"}`,
		`{"version":1,"args":{"cmd":"get_reports"}}`,
		`{"version":1,"args":["reset"]}`,
		`{"version":1,"args":[42]}`,
		`{"version":1,"args":["get_report","latency"]}`,
		`{"version":1,"args":["get_report"]}`,
		`{"version":1,"args":["get_report","latency",0,0]}`,
		`{"version":1,"args":["get_reports","extra"]}`,
	}

	for _, frame := range frames {
		requireError(t, h.raw(t, frame), protocol.ErrUnknownCommand)
	}

	// the session is untouched and still served
	requireSeries(t, h.query(t, "get_report", "latency", 0), []float64{1}, []float64{100})
}

func TestUndecodableFramesKeepLoopAlive(t *testing.T) {
	h := startLoop(t, 64)

	requireError(t, h.raw(t, "cpickle\n(dp0\n"), protocol.ErrUnknownCommand)
	requireError(t, h.raw(t, `{"version":9,"args":["get_reports"]}`), protocol.ErrUnknownCommand)

	h.push("after", 1, 2)
	requireSeries(t, h.query(t, "get_report", "after", 0), []float64{1}, []float64{2})
	assert.Equal(t, 2.0, testutil.ToFloat64(h.agg.metrics.DecodeFailures))
}

func TestSingleProducerOrder(t *testing.T) {
	const points = 1000
	h := startLoop(t, points)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < points; i++ {
			h.push("seq", float64(i), float64(-i))
		}
	}()
	<-done

	resp := h.query(t, "get_report", "seq", 0)
	require.Equal(t, protocol.KindReport, resp.Kind)
	require.Len(t, resp.Series.Xs, points)
	require.Len(t, resp.Series.Ys, points)
	for i := 0; i < points; i++ {
		require.Equal(t, float64(i), resp.Series.Xs[i])
		require.Equal(t, float64(-i), resp.Series.Ys[i])
	}
}

func TestQueriesNotStarvedByIngest(t *testing.T) {
	h := startLoop(t, 256)

	var stop atomic.Bool
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; !stop.Load(); i++ {
				h.push("flood", float64(i), 0)
			}
		}()
	}
	defer func() {
		stop.Store(true)
		wg.Wait()
	}()

	for i := 0; i < 20; i++ {
		resp := h.query(t, "get_analysis_info")
		require.Equal(t, protocol.KindAnalysisInfo, resp.Kind)
	}
}

func TestRejectedIngestLeavesSessionUntouched(t *testing.T) {
	h := startLoop(t, 64)
	h.queue.Push(Message{Name: "zero", Kind: report.Kind(0)})
	h.queue.Push(Message{Name: "odd", Kind: report.Kind(42)})

	resp := h.query(t, "get_analysis_info")
	require.Equal(t, protocol.KindAnalysisInfo, resp.Kind)
	assert.Equal(t, 0, resp.Info.ReportCount)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.agg.metrics.IngestRejected))
}

func TestMetricsFollowTraffic(t *testing.T) {
	h := startLoop(t, 64)
	h.push("a", 1, 1)
	h.push("a", 2, 2)

	h.query(t, "get_reports")
	h.query(t, "get_report", "missing", 0)

	m := h.agg.metrics
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PointsIngested))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Queries.WithLabelValues(protocol.CmdGetReports)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProtocolErrors.WithLabelValues(protocol.ErrUnknownReport)))
}

func TestRespondReadsOnly(t *testing.T) {
	q, err := queue.New[Message](1)
	require.NoError(t, err)
	agg := New(Config{Program: "p", Analysis: "a"}, q, endpoint.NewMemory(), nil)
	_, err = agg.session.Apply("x", report.TwoDPlot, report.Point{X: 1, Y: 2})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		agg.respond([]any{"get_report", "x", 0})
		agg.respond([]any{"get_reports"})
	}

	assert.Equal(t, 1, agg.session.Len())
	assert.Equal(t, 1, agg.session.Points())
}

func TestRunStopsOnCancel(t *testing.T) {
	q, err := queue.New[Message](1)
	require.NoError(t, err)
	agg := New(Config{StatsInterval: time.Millisecond}, q, endpoint.NewMemory(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agg.Run(ctx) }()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
