package aggregate

import (
	"fmt"

	"github.com/viant/calcatime/calendar"
	"github.com/viant/calcatime/timespan"
)

// GroupedTotal is the summed duration of one group over a range.
type GroupedTotal struct {
	Range    timespan.DateRange
	Group    string
	Duration float64
}

// Aggregate sums event hours per group key over events overlapping r.
// Groups keep first-seen order. Totals of exactly zero are dropped unless includeZero is set.
func Aggregate(events []calendar.Event, r timespan.DateRange, spec GroupSpec, includeZero bool) ([]GroupedTotal, error) {
	var order []string
	totals := map[string]float64{}
	for _, ev := range events {
		if !ev.Overlaps(r) {
			continue
		}
		hours, err := duration(ev)
		if err != nil {
			return nil, err
		}
		key := spec.Key(ev)
		if _, ok := totals[key]; !ok {
			order = append(order, key)
		}
		totals[key] += hours
	}
	out := make([]GroupedTotal, 0, len(order))
	for _, key := range order {
		if !includeZero && totals[key] == 0 {
			continue
		}
		out = append(out, GroupedTotal{Range: r, Group: key, Duration: totals[key]})
	}
	return out, nil
}

func duration(ev calendar.Event) (float64, error) {
	if ev.End.Before(ev.Start) {
		return 0, fmt.Errorf("%w: %q ends %s before it starts %s", ErrInvalidEvent, ev.Title, ev.End, ev.Start)
	}
	return ev.Hours(), nil
}
