package aggregate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/viant/calcatime/calendar"
)

var (
	// ErrInvalidGroupSpec is returned for an unknown attribute or a malformed pattern.
	ErrInvalidGroupSpec = errors.New("invalid group spec")
	// ErrInvalidEvent is returned for an event ending before it starts.
	ErrInvalidEvent = errors.New("invalid event")
)

// Attribute is the event field events are grouped by.
type Attribute string

const (
	Category Attribute = "category"
	Title    Attribute = "title"
)

// Unmatched is the group key of events whose attribute does not match the pattern.
const Unmatched = ""

// GroupSpec selects the grouping attribute and an optional extraction pattern.
type GroupSpec struct {
	Attribute Attribute
	Pattern   *regexp.Regexp
}

// DefaultGroupSpec groups by raw category.
var DefaultGroupSpec = GroupSpec{Attribute: Category}

// ParseGroupSpec parses `category[:<pattern>]` or `title[:<pattern>]`.
// Patterns match case-insensitively.
func ParseGroupSpec(s string) (GroupSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultGroupSpec, nil
	}
	name, pattern, hasPattern := strings.Cut(s, ":")
	spec := GroupSpec{Attribute: Attribute(strings.ToLower(name))}
	switch spec.Attribute {
	case Category, Title:
	default:
		return GroupSpec{}, fmt.Errorf("%w: unknown attribute %q", ErrInvalidGroupSpec, name)
	}
	if !hasPattern || pattern == "" {
		return spec, nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return GroupSpec{}, fmt.Errorf("%w: %v", ErrInvalidGroupSpec, err)
	}
	spec.Pattern = re
	return spec, nil
}

func (g GroupSpec) String() string {
	if g.Pattern == nil {
		return string(g.Attribute)
	}
	return string(g.Attribute) + ":" + strings.TrimPrefix(g.Pattern.String(), "(?i)")
}

// values returns the candidate attribute values of ev in match order.
func (g GroupSpec) values(ev calendar.Event) []string {
	if g.Attribute == Title {
		return []string{ev.Title}
	}
	return ev.Categories
}

// Key returns the group key of ev.
func (g GroupSpec) Key(ev calendar.Event) string {
	values := g.values(ev)
	if g.Pattern == nil {
		if len(values) == 0 {
			return ""
		}
		return values[0]
	}
	for _, v := range values {
		if key, ok := g.extract(v); ok {
			return key
		}
	}
	return Unmatched
}

// extract returns the first capture group, or the whole match for a pattern without groups.
// An empty first group falls back to the whole match so a match never lands in Unmatched.
func (g GroupSpec) extract(value string) (string, bool) {
	m := g.Pattern.FindStringSubmatch(value)
	if m == nil {
		return "", false
	}
	if len(m) > 1 && m[1] != "" {
		return m[1], true
	}
	return m[0], true
}
