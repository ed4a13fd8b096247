package report

import "codeberg.org/mutker/anemone/internal/errors"

// Kind identifies the shape of a report's series
type Kind int

const (
	TwoDPlot Kind = iota + 1
)

var kindNames = map[Kind]string{
	TwoDPlot: "2dplot",
}

// String returns the wire name of the kind
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind maps a wire name back to a Kind
func ParseKind(name string) (Kind, error) {
	for kind, n := range kindNames {
		if n == name {
			return kind, nil
		}
	}
	return 0, errors.New().WithData(ErrUnknownKind, name)
}

// Point is one ingested sample for a TwoDPlot report
type Point struct {
	X float64
	Y float64
}

// Report is a named, append-only series
type Report struct {
	Name string
	Kind Kind
	Xs   []float64
	Ys   []float64
}

// Append adds one point, keeping Xs and Ys the same length
func (r *Report) Append(p Point) {
	r.Xs = append(r.Xs, p.X)
	r.Ys = append(r.Ys, p.Y)
}

func (r *Report) Len() int {
	return len(r.Xs)
}

// Slice returns copies of the series from start onwards. A start beyond the
// end yields empty, non-nil slices.
func (r *Report) Slice(start int) (xs, ys []float64) {
	if start < 0 {
		start = 0
	}
	if start >= r.Len() {
		return []float64{}, []float64{}
	}

	xs = append([]float64(nil), r.Xs[start:]...)
	ys = append([]float64(nil), r.Ys[start:]...)
	return xs, ys
}
