package inspector

import (
	"codeberg.org/mutker/anemone/internal/errors"
)

const (
	ErrDial               = errors.ErrorCode("inspector_dial_failed")
	ErrUnsupportedScheme  = errors.ErrorCode("inspector_unsupported_scheme")
	ErrRequest            = errors.ErrorCode("inspector_request_failed")
	ErrUnexpectedResponse = errors.ErrorCode("inspector_unexpected_response")
	ErrClosed             = errors.ErrorCode("inspector_closed")
)

// ServerError is an error response from the server. Message is one of the
// fixed protocol error strings.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// IsServerError reports whether err is a ServerError carrying msg
func IsServerError(err error, msg string) bool {
	var se *ServerError
	return errors.As(err, &se) && se.Message == msg
}
