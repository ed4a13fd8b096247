package inspector

import (
	"context"

	"codeberg.org/mutker/anemone/pkg/protocol"
)

// Update holds the points of one report added since the previous poll.
// Start is the index of the first point in Xs.
type Update struct {
	Name  string
	Kind  string
	Start int
	Xs    []float64
	Ys    []float64
}

// Follower polls every report incrementally, keeping one cursor per report
type Follower struct {
	client  *Client
	order   []string
	kinds   map[string]string
	cursors map[string]int
}

func NewFollower(c *Client) *Follower {
	return &Follower{
		client:  c,
		kinds:   make(map[string]string),
		cursors: make(map[string]int),
	}
}

// Poll discovers new reports and fetches what each gained since the last
// call. Reports without new points produce no Update.
func (f *Follower) Poll(ctx context.Context) ([]Update, error) {
	entries, err := f.client.Reports(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if _, ok := f.kinds[e.Name]; !ok {
			f.order = append(f.order, e.Name)
			f.kinds[e.Name] = e.Kind
		}
	}

	var updates []Update
	for _, name := range f.order {
		start := f.cursors[name]
		series, err := f.client.Report(ctx, name, start)
		if err != nil {
			if IsServerError(err, protocol.ErrUnsupportedKind) {
				continue
			}
			return updates, err
		}
		if len(series.Xs) == 0 {
			continue
		}

		f.cursors[name] = start + len(series.Xs)
		updates = append(updates, Update{
			Name:  name,
			Kind:  f.kinds[name],
			Start: start,
			Xs:    series.Xs,
			Ys:    series.Ys,
		})
	}

	return updates, nil
}

// Cursor returns the number of points of name seen so far
func (f *Follower) Cursor(name string) int {
	return f.cursors[name]
}
