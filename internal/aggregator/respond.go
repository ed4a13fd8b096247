package aggregator

import (
	"codeberg.org/mutker/anemone/internal/logger"
	"codeberg.org/mutker/anemone/internal/report"
	"codeberg.org/mutker/anemone/pkg/protocol"
)

// respond computes the reply to a request tuple. It only reads the session.
func (a *Aggregator) respond(args any) *protocol.Response {
	cmd, ok := protocol.ParseCommand(args)
	if !ok {
		return a.fail(protocol.ErrUnknownCommand)
	}

	a.metrics.Queries.WithLabelValues(cmd.Op).Inc()
	logger.Debug().Str("command", cmd.Op).Msg("Query received")

	switch cmd.Op {
	case protocol.CmdGetAnalysisInfo:
		return protocol.InfoResponse(a.cfg.Program, a.cfg.Analysis, a.session.Len())
	case protocol.CmdGetReports:
		return a.reports()
	case protocol.CmdGetReport:
		return a.report(cmd)
	default:
		return a.fail(protocol.ErrUnknownCommand)
	}
}

func (a *Aggregator) reports() *protocol.Response {
	entries := a.session.Entries()
	out := make([]protocol.ReportEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, protocol.ReportEntry{Name: e.Name, Kind: e.Kind.String()})
	}
	return protocol.ReportsResponse(out)
}

func (a *Aggregator) report(cmd protocol.Command) *protocol.Response {
	var r *report.Report
	name, ok := cmd.ReportName()
	if ok {
		r, ok = a.session.Lookup(name)
	}
	if !ok {
		return a.fail(protocol.ErrUnknownReport)
	}

	start, ok := protocol.ParseStartIndex(cmd.Start)
	if !ok {
		return a.fail(protocol.ErrMalformedStartIndex)
	}

	switch r.Kind {
	case report.TwoDPlot:
		xs, ys := r.Slice(start)
		return protocol.SeriesResponse(xs, ys)
	default:
		return a.fail(protocol.ErrUnsupportedKind)
	}
}

func (a *Aggregator) fail(msg string) *protocol.Response {
	a.metrics.ProtocolErrors.WithLabelValues(msg).Inc()
	return protocol.ErrorResponse(msg)
}
