package report

import "codeberg.org/mutker/anemone/internal/errors"

// Entry describes a report without its data
type Entry struct {
	Name string
	Kind Kind
}

// Session holds every report of one reporting session in insertion order.
// It is not safe for concurrent use: a single goroutine owns it.
type Session struct {
	order   []string
	reports map[string]*Report
	points  int
}

func NewSession() *Session {
	return &Session{
		reports: make(map[string]*Report),
	}
}

// Apply appends a point to the named report, creating the report on first
// use. Any string names a report, the empty one included. It reports whether
// a new report was created.
func (s *Session) Apply(name string, kind Kind, p Point) (bool, error) {
	errFactory := errors.New()

	if _, ok := kindNames[kind]; !ok {
		return false, errFactory.WithData(ErrUnknownKind, int(kind))
	}

	r, ok := s.reports[name]
	if ok && r.Kind != kind {
		return false, errFactory.WithData(ErrKindMismatch, struct {
			Name     string
			Existing string
			Incoming string
		}{
			Name:     name,
			Existing: r.Kind.String(),
			Incoming: kind.String(),
		})
	}

	created := false
	if !ok {
		r = &Report{Name: name, Kind: kind}
		s.reports[name] = r
		s.order = append(s.order, name)
		created = true
	}

	r.Append(p)
	s.points++

	return created, nil
}

// Lookup returns the named report
func (s *Session) Lookup(name string) (*Report, bool) {
	r, ok := s.reports[name]
	return r, ok
}

// Entries lists reports in the order they were first seen
func (s *Session) Entries() []Entry {
	entries := make([]Entry, 0, len(s.order))
	for _, name := range s.order {
		entries = append(entries, Entry{Name: name, Kind: s.reports[name].Kind})
	}
	return entries
}

// Len returns the number of reports
func (s *Session) Len() int {
	return len(s.order)
}

// Points returns the number of points held across all reports
func (s *Session) Points() int {
	return s.points
}
