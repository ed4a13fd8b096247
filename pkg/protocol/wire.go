package protocol

import (
	"encoding/json"
	"math"

	"codeberg.org/mutker/anemone/internal/errors"
)

// JSON has no literal for non-finite numbers, so series carry them as
// these strings.
const (
	TokenNaN    = "NaN"
	TokenPosInf = "Infinity"
	TokenNegInf = "-Infinity"
)

// MarshalJSON writes only the members of r's kind. A reports response
// always carries its list, empty or not.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Kind == KindReports {
		reports := r.Reports
		if reports == nil {
			reports = []ReportEntry{}
		}
		return codec.Marshal(struct {
			Version int           `json:"version"`
			Kind    ResponseKind  `json:"kind"`
			Reports []ReportEntry `json:"reports"`
		}{
			Version: r.Version,
			Kind:    r.Kind,
			Reports: reports,
		})
	}

	type plain Response
	return codec.Marshal(plain(r))
}

type wireSeries struct {
	Xs []any `json:"xs"`
	Ys []any `json:"ys"`
}

func (s Series) MarshalJSON() ([]byte, error) {
	return codec.Marshal(wireSeries{
		Xs: encodeValues(s.Xs),
		Ys: encodeValues(s.Ys),
	})
}

func (s *Series) UnmarshalJSON(data []byte) error {
	var wire wireSeries
	if err := codec.Unmarshal(data, &wire); err != nil {
		return err
	}

	xs, err := decodeValues(wire.Xs)
	if err != nil {
		return err
	}
	ys, err := decodeValues(wire.Ys)
	if err != nil {
		return err
	}
	if len(xs) != len(ys) {
		return errors.New().WithData(ErrInvalidResponse, struct {
			Xs int
			Ys int
		}{
			Xs: len(xs),
			Ys: len(ys),
		})
	}

	s.Xs, s.Ys = xs, ys
	return nil
}

func encodeValues(vs []float64) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		switch {
		case math.IsNaN(v):
			out[i] = TokenNaN
		case math.IsInf(v, 1):
			out[i] = TokenPosInf
		case math.IsInf(v, -1):
			out[i] = TokenNegInf
		default:
			out[i] = v
		}
	}
	return out
}

func decodeValues(vs []any) ([]float64, error) {
	out := make([]float64, len(vs))
	for i, v := range vs {
		f, ok := decodeValue(v)
		if !ok {
			return nil, errors.New().WithData(ErrInvalidResponse, v)
		}
		out[i] = f
	}
	return out, nil
}

func decodeValue(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case string:
		switch n {
		case TokenNaN:
			return math.NaN(), true
		case TokenPosInf:
			return math.Inf(1), true
		case TokenNegInf:
			return math.Inf(-1), true
		}
	}
	return 0, false
}
