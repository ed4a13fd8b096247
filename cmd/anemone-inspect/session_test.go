package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/anemone/internal/archive"
	"codeberg.org/mutker/anemone/internal/logger"
	"codeberg.org/mutker/anemone/pkg/inspector"
	"codeberg.org/mutker/anemone/pkg/protocol"
	"codeberg.org/mutker/anemone/pkg/reporter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, rec archive.Recorder) (*reporter.Reporter, *session, *bytes.Buffer) {
	t.Helper()

	r := reporter.New("solver", "convergence")
	require.NoError(t, r.Start("ws://127.0.0.1:0/"))
	t.Cleanup(func() { r.Stop() })

	client, err := inspector.Dial(context.Background(), r.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	out := &bytes.Buffer{}
	return r, &session{client: client, rec: rec, out: out, timeout: 5 * time.Second}, out
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"--connect", "ws://localhost:9000/", "--follow", "--interval", "250ms"})
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:9000/", opts.connect)
	assert.True(t, opts.follow)
	assert.Equal(t, 250*time.Millisecond, opts.interval)
	assert.Empty(t, opts.archive)

	_, err = parseFlags([]string{"--interval", "0s"})
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	noop, err := archive.NewService(archive.DefaultConfig(), nil)
	require.NoError(t, err)

	r, s, out := newSession(t, noop)
	r.Report2DPlot("residual", 0, 1)

	info, err := s.describe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, info.ReportCount)
	assert.Contains(t, out.String(), "program:  solver")
	assert.Contains(t, out.String(), "residual")
	assert.Contains(t, out.String(), "2dplot")
}

func TestPollPrintsAndArchives(t *testing.T) {
	cfg := archive.DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = filepath.Join(t.TempDir(), "inspect.db")
	cfg.BatchTimeout = 0
	rec, err := archive.NewService(cfg, logger.Default())
	require.NoError(t, err)
	defer rec.Close()

	r, s, out := newSession(t, rec)
	ctx := context.Background()

	info, err := s.describe(ctx)
	require.NoError(t, err)
	out.Reset()

	f := inspector.NewFollower(s.client)
	r.Report2DPlot("residual", 0, 1)
	r.Report2DPlot("residual", 1, 0.5)
	require.NoError(t, s.poll(ctx, f, info))

	r.Report2DPlot("residual", 2, 0.25)
	require.NoError(t, s.poll(ctx, f, info))

	assert.Equal(t, "residual\t0\t0\t1\nresidual\t1\t1\t0.5\nresidual\t2\t2\t0.25\n", out.String())

	points, err := rec.Points(ctx, archive.Key{Program: "solver", Analysis: "convergence", Name: "residual"})
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, 0.25, points[2].Y)
}

func TestFollowStopsOnCancel(t *testing.T) {
	noop, err := archive.NewService(archive.DefaultConfig(), nil)
	require.NoError(t, err)

	_, s, _ := newSession(t, noop)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.follow(ctx, protocol.AnalysisInfo{Program: "solver", Analysis: "convergence"}, 10*time.Millisecond)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not stop")
	}
}
