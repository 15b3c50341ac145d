package calendar

import (
	"context"
	"time"

	"github.com/viant/calcatime/timespan"
)

// Event is a calendar entry as reported by a provider.
type Event struct {
	Title      string    `json:"title"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Categories []string  `json:"categories,omitempty"`
}

// Hours returns the event length in fractional hours; negative when End precedes Start.
func (e Event) Hours() float64 {
	return e.End.Sub(e.Start).Hours()
}

// Client fetches events overlapping a date range.
type Client interface {
	Events(ctx context.Context, r timespan.DateRange) ([]Event, error)
}

// Overlaps reports whether e intersects the half-open range r.
// A zero-length event overlaps when its instant lies in r.
func (e Event) Overlaps(r timespan.DateRange) bool {
	if e.End.Equal(e.Start) {
		return r.Contains(e.Start)
	}
	return e.Start.Before(r.End) && e.End.After(r.Start)
}

// Static is an in-memory Client returning the events overlapping the requested range.
type Static []Event

func (s Static) Events(_ context.Context, r timespan.DateRange) ([]Event, error) {
	var out []Event
	for _, ev := range s {
		if ev.Overlaps(r) {
			out = append(out, ev)
		}
	}
	return out, nil
}
