package protocol

func InfoResponse(program, analysis string, reportCount int) *Response {
	return &Response{
		Version: Version,
		Kind:    KindAnalysisInfo,
		Info: &AnalysisInfo{
			Program:     program,
			Analysis:    analysis,
			ReportCount: reportCount,
		},
	}
}

func ReportsResponse(entries []ReportEntry) *Response {
	if entries == nil {
		entries = []ReportEntry{}
	}
	return &Response{Version: Version, Kind: KindReports, Reports: entries}
}

func SeriesResponse(xs, ys []float64) *Response {
	if xs == nil {
		xs = []float64{}
	}
	if ys == nil {
		ys = []float64{}
	}
	return &Response{Version: Version, Kind: KindReport, Series: &Series{Xs: xs, Ys: ys}}
}

func ErrorResponse(msg string) *Response {
	return &Response{Version: Version, Kind: KindError, Error: msg}
}
