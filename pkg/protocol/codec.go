package protocol

import (
	"bytes"

	"codeberg.org/mutker/anemone/internal/errors"
	jsoniter "github.com/json-iterator/go"
)

const (
	ErrEncode             = errors.ErrorCode("protocol_encode_failed")
	ErrDecode             = errors.ErrorCode("protocol_decode_failed")
	ErrUnsupportedVersion = errors.ErrorCode("protocol_unsupported_version")
	ErrFrameTooLarge      = errors.ErrorCode("protocol_frame_too_large")
	ErrInvalidResponse    = errors.ErrorCode("protocol_invalid_response")
)

// Numbers decode as json.Number so integer indexes survive untouched.
var codec = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// NewRequest builds a request envelope from a tuple
func NewRequest(args ...any) Request {
	return Request{Version: Version, Args: args}
}

func EncodeRequest(req Request) ([]byte, error) {
	if req.Version == 0 {
		req.Version = Version
	}

	frame, err := codec.Marshal(req)
	if err != nil {
		return nil, errors.New().Wrap(ErrEncode, err)
	}
	return frame, nil
}

func DecodeRequest(frame []byte) (Request, error) {
	errFactory := errors.New()

	if len(frame) > MaxFrameSize {
		return Request{}, errFactory.WithData(ErrFrameTooLarge, len(frame))
	}

	if len(bytes.TrimSpace(frame)) == 0 {
		return Request{}, errFactory.WithMessage(ErrDecode, "empty frame")
	}

	var req Request
	if err := codec.Unmarshal(frame, &req); err != nil {
		return Request{}, errFactory.Wrap(ErrDecode, err)
	}
	if req.Version != Version {
		return Request{}, errFactory.WithData(ErrUnsupportedVersion, req.Version)
	}

	return req, nil
}

func EncodeResponse(resp *Response) ([]byte, error) {
	if resp.Version == 0 {
		resp.Version = Version
	}

	frame, err := codec.Marshal(resp)
	if err != nil {
		return nil, errors.New().Wrap(ErrEncode, err)
	}
	return frame, nil
}

func DecodeResponse(frame []byte) (*Response, error) {
	errFactory := errors.New()

	if len(frame) > MaxFrameSize {
		return nil, errFactory.WithData(ErrFrameTooLarge, len(frame))
	}

	if len(bytes.TrimSpace(frame)) == 0 {
		return nil, errFactory.WithMessage(ErrDecode, "empty frame")
	}

	resp := &Response{}
	if err := codec.Unmarshal(frame, resp); err != nil {
		return nil, errFactory.Wrap(ErrDecode, err)
	}
	if resp.Version != Version {
		return nil, errFactory.WithData(ErrUnsupportedVersion, resp.Version)
	}

	switch resp.Kind {
	case KindAnalysisInfo:
		if resp.Info == nil {
			return nil, errFactory.WithData(ErrInvalidResponse, resp.Kind)
		}
	case KindReports:
		if resp.Reports == nil {
			resp.Reports = []ReportEntry{}
		}
	case KindReport:
		if resp.Series == nil {
			return nil, errFactory.WithData(ErrInvalidResponse, resp.Kind)
		}
		if resp.Series.Xs == nil {
			resp.Series.Xs = []float64{}
		}
		if resp.Series.Ys == nil {
			resp.Series.Ys = []float64{}
		}
	case KindError:
	default:
		return nil, errFactory.WithData(ErrInvalidResponse, resp.Kind)
	}

	return resp, nil
}
