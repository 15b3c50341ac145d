package timespan

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidTimespan is returned for empty, unknown or incomplete token sequences.
var ErrInvalidTimespan = errors.New("invalid timespan")

// Token is a single timespan keyword.
type Token string

const (
	Today     Token = "today"
	Yesterday Token = "yesterday"
	Week      Token = "week"
	Month     Token = "month"
	Year      Token = "year"
	Monday    Token = "monday"
	Tuesday   Token = "tuesday"
	Wednesday Token = "wednesday"
	Thursday  Token = "thursday"
	Friday    Token = "friday"
	Saturday  Token = "saturday"
	Sunday    Token = "sunday"
	Last      Token = "last"
)

var aliases = map[string]Token{
	"today":     Today,
	"yesterday": Yesterday,
	"week":      Week,
	"month":     Month,
	"year":      Year,
	"monday":    Monday,
	"mon":       Monday,
	"tuesday":   Tuesday,
	"tue":       Tuesday,
	"wednesday": Wednesday,
	"wed":       Wednesday,
	"thursday":  Thursday,
	"thu":       Thursday,
	"friday":    Friday,
	"fri":       Friday,
	"saturday":  Saturday,
	"sat":       Saturday,
	"sunday":    Sunday,
	"sun":       Sunday,
	"last":      Last,
}

var weekdays = map[Token]time.Weekday{
	Monday:    time.Monday,
	Tuesday:   time.Tuesday,
	Wednesday: time.Wednesday,
	Thursday:  time.Thursday,
	Friday:    time.Friday,
	Saturday:  time.Saturday,
	Sunday:    time.Sunday,
}

// ParseToken maps a keyword or its short alias to a Token (case-insensitive).
func ParseToken(s string) (Token, error) {
	if t, ok := aliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown token %q", ErrInvalidTimespan, s)
}

// Parse converts raw arguments into tokens.
func Parse(args []string) ([]Token, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: no timespan given", ErrInvalidTimespan)
	}
	tokens := make([]Token, 0, len(args))
	for _, arg := range args {
		t, err := ParseToken(arg)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

// IsModifier reports whether t shifts the following unit instead of naming one.
func (t Token) IsModifier() bool { return t == Last }
