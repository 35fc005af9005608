package appointment

import (
	"fmt"
	"time"
)

// TimeRange is the half-open interval [Start, End). It is immutable once
// constructed; every scheduling request builds a fresh value.
type TimeRange struct {
	start time.Time
	end   time.Time
}

// NewTimeRange validates that start is strictly before end. Zero-length
// ranges are rejected.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	if !start.Before(end) {
		return TimeRange{}, &InvalidRangeError{Start: start, End: end}
	}
	return TimeRange{start: start, end: end}, nil
}

func (r TimeRange) Start() time.Time { return r.start }
func (r TimeRange) End() time.Time   { return r.end }

// OverlapsWith reports whether two ranges share any instant. The test is
// open-interval: ranges that only touch at a boundary do not overlap, so
// back-to-back appointments are allowed.
func (r TimeRange) OverlapsWith(other TimeRange) bool {
	return r.start.Before(other.end) && r.end.After(other.start)
}

// Contains reports half-open containment: the start instant is inside the
// range, the end instant is not.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.start) && t.Before(r.end)
}

// DurationMinutes is the range length in whole minutes, rounded down.
func (r TimeRange) DurationMinutes() int {
	return int(r.end.Sub(r.start).Seconds()) / 60
}

// Equal compares by instant, so the same interval expressed in different
// locations is still equal.
func (r TimeRange) Equal(other TimeRange) bool {
	return r.start.Equal(other.start) && r.end.Equal(other.end)
}

func (r TimeRange) IsZero() bool {
	return r.start.IsZero() && r.end.IsZero()
}

func (r TimeRange) String() string {
	return fmt.Sprintf("%s - %s", r.start.Format(time.RFC3339), r.end.Format(time.RFC3339))
}
