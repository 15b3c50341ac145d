package timespan

import (
	"fmt"
	"time"
)

// DateRange is a half-open [Start, End) interval of whole days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls in [Start, End).
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Union returns the bounding range of r and o.
func (r DateRange) Union(o DateRange) DateRange {
	out := r
	if o.Start.Before(out.Start) {
		out.Start = o.Start
	}
	if o.End.After(out.End) {
		out.End = o.End
	}
	return out
}

func (r DateRange) String() string {
	return r.Start.Format(time.DateOnly) + ".." + r.End.Format(time.DateOnly)
}

// fold carries the left-fold state over a token sequence.
type fold struct {
	pending int
	result  DateRange
	seen    bool
}

// Resolve turns raw timespan arguments into one date range anchored at now.
// Several unit tokens collapse into their bounding range.
func Resolve(args []string, now time.Time) (DateRange, error) {
	tokens, err := Parse(args)
	if err != nil {
		return DateRange{}, err
	}
	return ResolveTokens(tokens, now)
}

// ResolveTokens is Resolve over already parsed tokens.
func ResolveTokens(tokens []Token, now time.Time) (DateRange, error) {
	if len(tokens) == 0 {
		return DateRange{}, fmt.Errorf("%w: no timespan given", ErrInvalidTimespan)
	}
	var state fold
	for _, t := range tokens {
		if t.IsModifier() {
			state.pending++
			continue
		}
		r, err := unitRange(t, now, state.pending)
		if err != nil {
			return DateRange{}, err
		}
		if state.seen {
			state.result = state.result.Union(r)
		} else {
			state.result, state.seen = r, true
		}
		state.pending = 0
	}
	if state.pending > 0 {
		return DateRange{}, fmt.Errorf("%w: %q must be followed by a unit", ErrInvalidTimespan, Last)
	}
	return state.result, nil
}

// unitRange computes the range of unit t around now shifted back by shifts unit periods.
func unitRange(t Token, now time.Time, shifts int) (DateRange, error) {
	day := midnight(now)
	switch t {
	case Today:
		start := day.AddDate(0, 0, -shifts)
		return DateRange{Start: start, End: start.AddDate(0, 0, 1)}, nil
	case Yesterday:
		start := day.AddDate(0, 0, -1-shifts)
		return DateRange{Start: start, End: start.AddDate(0, 0, 1)}, nil
	case Week:
		start := weekStart(day).AddDate(0, 0, -7*shifts)
		return DateRange{Start: start, End: start.AddDate(0, 0, 7)}, nil
	case Month:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location()).AddDate(0, -shifts, 0)
		return DateRange{Start: start, End: start.AddDate(0, 1, 0)}, nil
	case Year:
		start := time.Date(day.Year()-shifts, time.January, 1, 0, 0, 0, 0, day.Location())
		return DateRange{Start: start, End: start.AddDate(1, 0, 0)}, nil
	}
	if wd, ok := weekdays[t]; ok {
		back := (int(day.Weekday()) - int(wd) + 7) % 7
		start := day.AddDate(0, 0, -back-7*shifts)
		return DateRange{Start: start, End: start.AddDate(0, 0, 1)}, nil
	}
	return DateRange{}, fmt.Errorf("%w: unknown token %q", ErrInvalidTimespan, t)
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// weekStart returns the Monday of the week containing day.
func weekStart(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
