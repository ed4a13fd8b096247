package archive

import (
	"context"
	"time"
)

// Recorder stores polled report points
type Recorder interface {
	Record(ctx context.Context, batch *Batch) error
	Points(ctx context.Context, key Key) ([]Point, error)
	Close() error
	Enabled() bool
}

type Repository interface {
	Record(batch *Batch) error
	Points(key Key) ([]Point, error)
	Close() error
}

// Key identifies a report across sessions
type Key struct {
	Program  string
	Analysis string
	Name     string
}

// Batch is a run of consecutive points of one report. Xs[i] is the point
// with index Start+i in the session.
type Batch struct {
	Key
	Kind       string
	Start      int
	Xs         []float64
	Ys         []float64
	RecordedAt time.Time
}

type Point struct {
	Seq        int
	X          float64
	Y          float64
	RecordedAt time.Time
}
