package protocol

// Request carries a request tuple. Args is normally a []any whose first
// element names the command; any other value is answered with
// ErrUnknownCommand.
type Request struct {
	Version int `json:"version"`
	Args    any `json:"args"`
}

type AnalysisInfo struct {
	Program     string `json:"program"`
	Analysis    string `json:"analysis"`
	ReportCount int    `json:"report_count"`
}

type ReportEntry struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// Series is a TwoDPlot slice, Xs[i] pairs with Ys[i]. NaN and the
// infinities travel as TokenNaN, TokenPosInf and TokenNegInf.
type Series struct {
	Xs []float64 `json:"xs"`
	Ys []float64 `json:"ys"`
}

// Response is a tagged union discriminated by Kind. Exactly one of Info,
// Reports, Series or Error is meaningful and only that one is encoded.
type Response struct {
	Version int           `json:"version"`
	Kind    ResponseKind  `json:"kind"`
	Info    *AnalysisInfo `json:"info,omitempty"`
	Reports []ReportEntry `json:"reports,omitempty"`
	Series  *Series       `json:"series,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// IsError reports whether the response is an error response
func (r *Response) IsError() bool {
	return r.Kind == KindError
}
