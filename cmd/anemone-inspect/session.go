package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"codeberg.org/mutker/anemone/internal/archive"
	"codeberg.org/mutker/anemone/internal/logger"
	"codeberg.org/mutker/anemone/pkg/inspector"
	"codeberg.org/mutker/anemone/pkg/protocol"
)

type session struct {
	client  *inspector.Client
	rec     archive.Recorder
	out     io.Writer
	timeout time.Duration
}

// describe prints the analysis header and the report listing
func (s *session) describe(ctx context.Context) (protocol.AnalysisInfo, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	info, err := s.client.AnalysisInfo(reqCtx)
	if err != nil {
		return info, err
	}
	reports, err := s.client.Reports(reqCtx)
	if err != nil {
		return info, err
	}

	fmt.Fprintf(s.out, "program:  %s\nanalysis: %s\nreports:  %d\n", info.Program, info.Analysis, info.ReportCount)

	if len(reports) > 0 {
		tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tKIND")
		for _, r := range reports {
			fmt.Fprintf(tw, "%s\t%s\n", r.Name, r.Kind)
		}
		if err := tw.Flush(); err != nil {
			return info, err
		}
	}

	return info, nil
}

// follow polls until ctx is cancelled, printing and archiving new points
func (s *session) follow(ctx context.Context, info protocol.AnalysisInfo, interval time.Duration) error {
	f := inspector.NewFollower(s.client)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.poll(ctx, f, info); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *session) poll(ctx context.Context, f *inspector.Follower, info protocol.AnalysisInfo) error {
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	updates, err := f.Poll(reqCtx)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, u := range updates {
		for i := range u.Xs {
			fmt.Fprintf(s.out, "%s\t%d\t%s\t%s\n", u.Name, u.Start+i, formatFloat(u.Xs[i]), formatFloat(u.Ys[i]))
		}

		err := s.rec.Record(ctx, &archive.Batch{
			Key: archive.Key{
				Program:  info.Program,
				Analysis: info.Analysis,
				Name:     u.Name,
			},
			Kind:       u.Kind,
			Start:      u.Start,
			Xs:         u.Xs,
			Ys:         u.Ys,
			RecordedAt: now,
		})
		if err != nil {
			return err
		}
	}

	if len(updates) > 0 {
		logger.Debug().Int("reports", len(updates)).Msg("Polled new points")
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
