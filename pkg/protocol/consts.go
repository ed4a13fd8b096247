package protocol

const (
	// Version is the envelope version this package reads and writes
	Version = 1

	// MaxFrameSize bounds a single encoded envelope
	MaxFrameSize = 1 << 20
)

// Request commands (first element of the request tuple)
const (
	CmdGetAnalysisInfo = "get_analysis_info"
	CmdGetReports      = "get_reports"
	CmdGetReport       = "get_report"
)

// Fixed error messages carried by error responses
const (
	ErrUnknownCommand      = "ERROR: unknown command"
	ErrUnknownReport       = "ERROR: unknown report"
	ErrMalformedStartIndex = "ERROR: malformed start index"
	ErrUnsupportedKind     = "ERROR: unsupported kind"

	// ErrInternal answers a query whose response could not be encoded
	ErrInternal = "ERROR: internal error"
)

type ResponseKind string

const (
	KindAnalysisInfo ResponseKind = "analysis_info"
	KindReports      ResponseKind = "reports"
	KindReport       ResponseKind = "report"
	KindError        ResponseKind = "error"
)
