package endpoint

import "codeberg.org/mutker/anemone/internal/errors"

const (
	ErrInvalidAddress    = errors.ErrorCode("endpoint_invalid_address")
	ErrUnsupportedScheme = errors.ErrorCode("endpoint_unsupported_scheme")
	ErrBindFailed        = errors.ErrorCode("endpoint_bind_failed")
	ErrCloseFailed       = errors.ErrorCode("endpoint_close_failed")
	ErrClosed            = errors.ErrorCode("endpoint_closed")
)
