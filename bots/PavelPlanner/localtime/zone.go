// Package localtime converts between instants and the civil calendar of the
// single fixed-offset zone the planner works in. The zone has no daylight
// saving time and users have no zones of their own.
package localtime

import (
	"fmt"
	"time"

	"github.com/jmhodges/clock"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	DefaultOffset = 3 * time.Hour
)

type Zone struct {
	clk clock.Clock
	loc *time.Location
}

// New creates a zone with the given UTC offset. The offset is truncated to
// whole minutes.
func New(clk clock.Clock, offset time.Duration) *Zone {
	offset = offset.Truncate(time.Minute)
	return &Zone{
		clk: clk,
		loc: time.FixedZone(zoneName(offset), int(offset/time.Second)),
	}
}

func zoneName(offset time.Duration) string {
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	h := offset / time.Hour
	m := (offset - h*time.Hour) / time.Minute
	return fmt.Sprintf("UTC%c%02d:%02d", sign, h, m)
}

// Location returns the fixed zone.
func (z *Zone) Location() *time.Location {
	return z.loc
}

// Now returns the current instant expressed in the local calendar.
func (z *Zone) Now() time.Time {
	return z.clk.Now().In(z.loc)
}

// Today returns the current local date formatted as YYYY-MM-DD.
func (z *Zone) Today() string {
	return z.Now().Format(DateLayout)
}

// ToLocal converts a civil date (YYYY-MM-DD) and time (HH:MM) to an instant.
func (z *Zone) ToLocal(date, tm string) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+tm, z.loc)
}

// Midnight returns the start of the civil day t belongs to.
func (z *Zone) Midnight(t time.Time) time.Time {
	t = t.In(z.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, z.loc)
}

// ValidDate reports whether s is a civil date in the format YYYY-MM-DD.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// ValidTime reports whether s is a civil time in the format HH:MM.
func ValidTime(s string) bool {
	_, err := time.Parse(TimeLayout, s)
	return err == nil
}
