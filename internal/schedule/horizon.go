package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidHorizon = errors.New("invalid horizon")

// Horizon is a calendar window measured forward from a day. Calendar units are
// used instead of a time.Duration so that "one year" spans leap days correctly.
type Horizon struct {
	Years  int
	Months int
	Days   int
}

// DefaultHorizon is one calendar year.
var DefaultHorizon = Horizon{Years: 1}

// MaxHorizon bounds parsed horizons. Daily maintenance over it already means
// thousands of occurrences per equipment.
var MaxHorizon = Horizon{Years: 10}

// exceeds reports whether h reaches further than max from a fixed reference day.
func (h Horizon) exceeds(max Horizon) bool {
	ref := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	return h.End(ref).After(max.End(ref))
}

// IsZero reports whether the horizon is empty.
func (h Horizon) IsZero() bool {
	return h.Years == 0 && h.Months == 0 && h.Days == 0
}

// End returns the last day inside the window starting at the day of from.
func (h Horizon) End(from time.Time) time.Time {
	return DateOf(from).AddDate(h.Years, h.Months, h.Days)
}

func (h Horizon) String() string {
	var b strings.Builder
	if h.Years != 0 {
		fmt.Fprintf(&b, "%dy", h.Years)
	}
	if h.Months != 0 {
		fmt.Fprintf(&b, "%dm", h.Months)
	}
	if h.Days != 0 || b.Len() == 0 {
		fmt.Fprintf(&b, "%dd", h.Days)
	}
	return b.String()
}

// ParseHorizon parses values like "1y", "6m", "90d" or "1y6m".
func ParseHorizon(s string) (Horizon, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Horizon{}, fmt.Errorf("%w: empty", ErrInvalidHorizon)
	}
	var h Horizon
	num := ""
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
		case r == 'y' || r == 'm' || r == 'w' || r == 'd':
			if num == "" {
				return Horizon{}, fmt.Errorf("%w: %q", ErrInvalidHorizon, s)
			}
			n, err := strconv.Atoi(num)
			if err != nil || n > 10000 {
				return Horizon{}, fmt.Errorf("%w: %q exceeds %s", ErrInvalidHorizon, s, MaxHorizon)
			}
			switch r {
			case 'y':
				h.Years += n
			case 'm':
				h.Months += n
			case 'w':
				h.Days += 7 * n
			case 'd':
				h.Days += n
			}
			num = ""
		default:
			return Horizon{}, fmt.Errorf("%w: %q", ErrInvalidHorizon, s)
		}
	}
	if num != "" || h.IsZero() {
		return Horizon{}, fmt.Errorf("%w: %q", ErrInvalidHorizon, s)
	}
	if h.exceeds(MaxHorizon) {
		return Horizon{}, fmt.Errorf("%w: %q exceeds %s", ErrInvalidHorizon, s, MaxHorizon)
	}
	return h, nil
}
