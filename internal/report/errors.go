package report

import "codeberg.org/mutker/anemone/internal/errors"

const (
	ErrUnknownKind  = errors.ErrorCode("report_unknown_kind")
	ErrKindMismatch = errors.ErrorCode("report_kind_mismatch")
)
